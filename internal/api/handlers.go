// Package api implements Ashford's thin admin HTTP surface: CRUD over
// deterministic rules, llm rules, and directions; action listing; the
// undo/approve/reject triggers; and priority reordering under a
// distributed lock. Grounded on the teacher's internal/api package
// (Handlers struct, respondJSON/respondError helpers, chi.Router wiring in
// routes.go), generalized from the teacher's dozens of dashboard endpoints
// down to the handful SPEC_FULL.md's Decision & Execution Pipeline needs.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dimfeld/ashford/internal/approval"
	"github.com/dimfeld/ashford/internal/logging"
	"github.com/dimfeld/ashford/internal/pkg/distlock"
	"github.com/dimfeld/ashford/internal/store"
	"github.com/dimfeld/ashford/internal/undo"
	"github.com/redis/go-redis/v9"
)

// Handlers holds every collaborator the admin API's routes dispatch to.
type Handlers struct {
	store      *store.Store
	approvals  *approval.Service
	undos      *undo.Service
	redis      *redis.Client // nil falls back to PG advisory locks, per distlock.NewLock
	lockTTLSec int
}

// NewHandlers builds a Handlers. redisClient may be nil.
func NewHandlers(st *store.Store, redisClient *redis.Client, lockTTLSec int) *Handlers {
	return &Handlers{
		store:      st,
		approvals:  approval.New(st),
		undos:      undo.New(st),
		redis:      redisClient,
		lockTTLSec: lockTTLSec,
	}
}

func (h *Handlers) lock(key string) distlock.DistLock {
	ttl := h.lockTTLSec
	if ttl <= 0 {
		ttl = 10
	}
	return distlock.NewLock(h.redis, h.store.DB(), key, time.Duration(ttl)*time.Second)
}

// HealthCheck reports liveness for the load balancer / orchestrator probe.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Warn("api: failed to encode response", "err", err.Error())
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
