package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all analytics routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Post("/metrics", h.HandleComputeMetrics) // Stateless metrics for a posted return series

		r.Route("/{user}", func(r chi.Router) {
			r.Get("/overview", h.HandleOverview)
			r.Get("/metrics", h.HandleMetrics)
			r.Get("/optimize", h.HandleOptimize)
			r.Get("/simulate", h.HandleSimulate)
		})
	})
}
