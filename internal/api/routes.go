package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CORSOrigins lists the allowed browser origins for the admin UI, sourced
// from Config.App.CORSOrigins.
type CORSOrigins []string

// SetupRoutes configures every route the admin API exposes, grounded on
// the teacher's SetupRoutes (internal/api/routes.go): middleware stack,
// then a /api sub-router for the resource routes.
func SetupRoutes(h *Handlers, allowedOrigins CORSOrigins) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	r.NotFound(NotFoundJSON)

	r.Route("/api", func(r chi.Router) {
		r.Route("/rules/deterministic", func(r chi.Router) {
			r.Get("/", h.ListDeterministicRules)
			r.Post("/", h.CreateDeterministicRule)
			r.Put("/{id}", h.UpdateDeterministicRule)
			r.Delete("/{id}", h.DeleteDeterministicRule)
			r.Post("/swap-priority", h.SwapDeterministicRulePriority)
		})

		r.Route("/rules/llm", func(r chi.Router) {
			r.Get("/", h.ListLlmRules)
			r.Post("/", h.CreateLlmRule)
			r.Put("/{id}", h.UpdateLlmRule)
			r.Delete("/{id}", h.DeleteLlmRule)
		})

		r.Route("/directions", func(r chi.Router) {
			r.Get("/", h.ListDirections)
			r.Post("/", h.CreateDirection)
			r.Put("/{id}", h.UpdateDirection)
			r.Delete("/{id}", h.DeleteDirection)
		})

		r.Route("/actions", func(r chi.Router) {
			r.Get("/", h.ListActions)
			r.Get("/{id}", h.GetAction)
			r.Post("/{id}/approve", h.ApproveAction)
			r.Post("/{id}/reject", h.RejectAction)
			r.Post("/{id}/undo", h.UndoAction)
		})
	})

	return r
}

// NotFoundJSON overrides chi's default 404 with Ashford's JSON error shape.
func NotFoundJSON(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusNotFound, "not found")
}
