package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dimfeld/ashford/internal/approval"
	"github.com/dimfeld/ashford/internal/store"
	"github.com/dimfeld/ashford/internal/undo"
)

// ListActions returns actions filtered by account_id, status, and/or
// action_type query parameters (all optional), newest first.
func (h *Handlers) ListActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	actions, err := h.store.Actions.List(r.Context(), store.ActionFilter{
		AccountID:  q.Get("account_id"),
		Status:     actionStatusParam(q.Get("status")),
		ActionType: actionTypeParam(q.Get("action_type")),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list actions")
		return
	}
	respondJSON(w, http.StatusOK, actions)
}

// GetAction returns a single action by id.
func (h *Handlers) GetAction(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.Actions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "action not found")
		return
	}
	respondJSON(w, http.StatusOK, a)
}

type approverRequest struct {
	ApproverActionID string `json:"approver_action_id"`
}

// ApproveAction transitions an ApprovedPending action to Queued.
func (h *Handlers) ApproveAction(w http.ResponseWriter, r *http.Request) {
	var req approverRequest
	_ = decodeBody(r, &req) // an empty/absent body is the common case (no approver action)

	id := chi.URLParam(r, "id")
	if err := h.approvals.Approve(r.Context(), id, req.ApproverActionID); err != nil {
		h.respondApprovalErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// RejectAction transitions an ApprovedPending action to Rejected.
func (h *Handlers) RejectAction(w http.ResponseWriter, r *http.Request) {
	var req approverRequest
	_ = decodeBody(r, &req)

	id := chi.URLParam(r, "id")
	if err := h.approvals.Reject(r.Context(), id, req.ApproverActionID); err != nil {
		h.respondApprovalErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (h *Handlers) respondApprovalErr(w http.ResponseWriter, err error) {
	var notPending *approval.ErrNotPending
	if errors.As(err, &notPending) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

// UndoAction synthesizes and enqueues the inverse of a completed action.
func (h *Handlers) UndoAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	u, err := h.undos.Trigger(r.Context(), id)
	if err != nil {
		var notUndoable *undo.ErrNotUndoable
		if errors.As(err, &notUndoable) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, u)
}
