// Package handlers provides HTTP handlers for portfolio analytics.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/internal/modules/analytics"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MinInteractiveIterations is the smallest simulation size accepted over HTTP.
const MinInteractiveIterations = 1000

// Handler handles analytics HTTP requests
type Handler struct {
	service *analytics.Service
	log     zerolog.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "analytics").Logger(),
	}
}

// MetricsRequest is the body of POST /api/analytics/metrics
type MetricsRequest struct {
	Returns []float64 `json:"returns"`
}

// HandleOverview handles GET /api/analytics/{user}/overview
func (h *Handler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, overview.RunID, overview)
}

// HandleMetrics handles GET /api/analytics/{user}/metrics
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Metrics(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, report.RunID, report)
}

// HandleComputeMetrics handles POST /api/analytics/metrics
func (h *Handler) HandleComputeMetrics(w http.ResponseWriter, r *http.Request) {
	var req MetricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.writeData(w, uuid.NewString(), h.service.MetricsForReturns(req.Returns))
}

// HandleOptimize handles GET /api/analytics/{user}/optimize?risk_free_rate=
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var rf *float64
	if raw := r.URL.Query().Get("risk_free_rate"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid risk_free_rate")
			return
		}
		rf = &v
	}

	report, err := h.service.Optimize(r.Context(), chi.URLParam(r, "user"), rf)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, report.RunID, report)
}

// HandleSimulate handles GET /api/analytics/{user}/simulate?iterations=&seed=
func (h *Handler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	iterations := h.service.Config().Iterations
	if raw := query.Get("iterations"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid iterations")
			return
		}
		if v < MinInteractiveIterations {
			h.writeError(w, http.StatusBadRequest,
				fmt.Sprintf("iterations must be at least %d", MinInteractiveIterations))
			return
		}
		iterations = v
	}

	var seed *uint64
	if raw := query.Get("seed"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid seed")
			return
		}
		seed = &v
	}

	report, err := h.service.Simulate(r.Context(), chi.URLParam(r, "user"), iterations, seed)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, report.RunID, report)
}

// StatusForError maps the analytics error taxonomy to HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrResourceLimitExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrOptimizationDidNotConverge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInsufficientData),
		errors.Is(err, domain.ErrInsufficientAssets),
		errors.Is(err, domain.ErrMisalignedSeries):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDataUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Analytics request failed")
	} else {
		h.log.Debug().Err(err).Int("status", status).Msg("Analytics request rejected")
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeData(w http.ResponseWriter, runID string, data interface{}) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"run_id":    runID,
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
