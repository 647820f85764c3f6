// Package handlers provides HTTP handlers for holdings management.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/internal/modules/holdings"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler handles holdings HTTP requests
type Handler struct {
	repo *holdings.Repository
	log  zerolog.Logger
}

// NewHandler creates a new holdings handler
func NewHandler(repo *holdings.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "holdings").Logger(),
	}
}

// AddPositionRequest is the body of POST /api/holdings/{user}/positions.
// Quantity is a decimal so fractional shares add up exactly.
type AddPositionRequest struct {
	Ticker   string          `json:"ticker"`
	Quantity decimal.Decimal `json:"quantity"`
}

// HandleGetHoldings handles GET /api/holdings/{user}
func (h *Handler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	held, err := h.repo.Load(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load holdings")
		h.writeError(w, http.StatusInternalServerError, "Failed to load holdings")
		return
	}
	h.writeData(w, http.StatusOK, held)
}

// HandlePutHoldings handles PUT /api/holdings/{user}, replacing all positions
func (h *Handler) HandlePutHoldings(w http.ResponseWriter, r *http.Request) {
	var body domain.HoldingsMap
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	normalized := make(domain.HoldingsMap, len(body))
	for ticker, qty := range body {
		normalized[holdings.NormalizeTicker(ticker)] += qty
	}

	if err := h.repo.Save(r.Context(), chi.URLParam(r, "user"), normalized); err != nil {
		h.writeRepoError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, normalized)
}

// HandleAddPosition handles POST /api/holdings/{user}/positions
func (h *Handler) HandleAddPosition(w http.ResponseWriter, r *http.Request) {
	var req AddPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	total, err := h.repo.Add(r.Context(), chi.URLParam(r, "user"), req.Ticker, req.Quantity)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.writeData(w, http.StatusCreated, map[string]interface{}{
		"ticker":   holdings.NormalizeTicker(req.Ticker),
		"quantity": total,
	})
}

// HandleRemovePosition handles DELETE /api/holdings/{user}/positions/{ticker}
func (h *Handler) HandleRemovePosition(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Remove(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "ticker")); err != nil {
		h.writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, holdings.ErrInvalidHolding):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, holdings.ErrHoldingNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	default:
		h.log.Error().Err(err).Msg("Holdings request failed")
		h.writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
