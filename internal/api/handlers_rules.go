package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dimfeld/ashford/internal/model"
)

func actionStatusParam(v string) model.ActionStatus {
	if v == "" {
		return ""
	}
	return model.ActionStatus(v)
}

func actionTypeParam(v string) model.ActionType {
	if v == "" {
		return ""
	}
	return model.ActionType(v)
}

// ListDeterministicRules returns every deterministic rule (enabled or not).
func (h *Handlers) ListDeterministicRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.Rules.ListDeterministicRules(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	respondJSON(w, http.StatusOK, rules)
}

// CreateDeterministicRule inserts a new deterministic rule.
func (h *Handlers) CreateDeterministicRule(w http.ResponseWriter, r *http.Request) {
	var rule model.DeterministicRule
	if err := decodeBody(r, &rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.store.Rules.CreateDeterministicRule(r.Context(), &rule); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create rule")
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

// UpdateDeterministicRule overwrites an existing deterministic rule.
func (h *Handlers) UpdateDeterministicRule(w http.ResponseWriter, r *http.Request) {
	var rule model.DeterministicRule
	if err := decodeBody(r, &rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rule.ID = chi.URLParam(r, "id")
	if err := h.store.Rules.UpdateDeterministicRule(r.Context(), &rule); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update rule")
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// DeleteDeterministicRule removes a deterministic rule.
func (h *Handlers) DeleteDeterministicRule(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Rules.DeleteDeterministicRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type swapPriorityRequest struct {
	RuleIDA string `json:"rule_id_a"`
	RuleIDB string `json:"rule_id_b"`
}

// SwapDeterministicRulePriority exchanges priority between two rules.
// Locked via distlock so two concurrent swap requests can never race each
// other into reading stale priorities (§5's locking-discipline note).
func (h *Handlers) SwapDeterministicRulePriority(w http.ResponseWriter, r *http.Request) {
	var req swapPriorityRequest
	if err := decodeBody(r, &req); err != nil || req.RuleIDA == "" || req.RuleIDB == "" {
		respondError(w, http.StatusBadRequest, "rule_id_a and rule_id_b are required")
		return
	}

	lock := h.lock("deterministic_rules:priority_swap")
	acquired, err := lock.Acquire(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to acquire lock")
		return
	}
	if !acquired {
		respondError(w, http.StatusConflict, "another priority change is in progress")
		return
	}
	defer lock.Release(r.Context())

	rows, err := h.store.Rules.SwapDeterministicRulePriority(r.Context(), req.RuleIDA, req.RuleIDB)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to swap priority")
		return
	}
	if rows != 2 {
		respondError(w, http.StatusNotFound, "one or both rule ids not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "swapped"})
}

// ListLlmRules returns every llm rule (enabled or not).
func (h *Handlers) ListLlmRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.Rules.ListLlmRules(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list llm rules")
		return
	}
	respondJSON(w, http.StatusOK, rules)
}

// CreateLlmRule inserts a new situational guidance rule.
func (h *Handlers) CreateLlmRule(w http.ResponseWriter, r *http.Request) {
	var rule model.LlmRule
	if err := decodeBody(r, &rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.store.Rules.CreateLlmRule(r.Context(), &rule); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create llm rule")
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

// UpdateLlmRule overwrites an existing llm rule.
func (h *Handlers) UpdateLlmRule(w http.ResponseWriter, r *http.Request) {
	var rule model.LlmRule
	if err := decodeBody(r, &rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rule.ID = chi.URLParam(r, "id")
	if err := h.store.Rules.UpdateLlmRule(r.Context(), &rule); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update llm rule")
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// DeleteLlmRule removes a llm rule.
func (h *Handlers) DeleteLlmRule(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Rules.DeleteLlmRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete llm rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDirections returns every direction (enabled or not).
func (h *Handlers) ListDirections(w http.ResponseWriter, r *http.Request) {
	directions, err := h.store.Directions.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list directions")
		return
	}
	respondJSON(w, http.StatusOK, directions)
}

// CreateDirection inserts a new global guardrail.
func (h *Handlers) CreateDirection(w http.ResponseWriter, r *http.Request) {
	var d model.Direction
	if err := decodeBody(r, &d); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.store.Directions.Create(r.Context(), &d); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create direction")
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

// UpdateDirection overwrites an existing direction.
func (h *Handlers) UpdateDirection(w http.ResponseWriter, r *http.Request) {
	var d model.Direction
	if err := decodeBody(r, &d); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d.ID = chi.URLParam(r, "id")
	if err := h.store.Directions.Update(r.Context(), &d); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update direction")
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// DeleteDirection removes a direction.
func (h *Handlers) DeleteDirection(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Directions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete direction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
