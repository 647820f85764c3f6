package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all holdings routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/holdings/{user}", func(r chi.Router) {
		r.Get("/", h.HandleGetHoldings)
		r.Put("/", h.HandlePutHoldings)
		r.Post("/positions", h.HandleAddPosition)
		r.Delete("/positions/{ticker}", h.HandleRemovePosition)
	})
}
