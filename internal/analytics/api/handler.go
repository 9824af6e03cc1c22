package analytics_api

import (
	"encoding/json"
	"errors"
	"net/http"

	"ms-booking/internal/analytics"
	"ms-booking/internal/logger"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, logger *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: logger}
}

// RegisterRoutes registers the analytics routes; callers mount it behind admin auth
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/events/{eventId}/stats", h.GetEventStats)
	r.Post("/api/events/stats/batch", h.GetBatchEventStats)
}

// GetEventStats handles the booking stats request for one event
func (h *Handler) GetEventStats(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	stats, err := h.Service.GetEventStats(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, analytics.ErrEventNotFound) {
			utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Event not found", err.Error()))
			return
		}
		h.Logger.Error("ANALYTICS", "Error getting event stats: "+err.Error())
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to get stats", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event stats", stats))
}

type batchRequest struct {
	EventIDs []string `json:"eventIds"`
}

// GetBatchEventStats handles stats for several events at once
func (h *Handler) GetBatchEventStats(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	stats, err := h.Service.GetBatchEventStats(r.Context(), req.EventIDs)
	if err != nil {
		h.Logger.Error("ANALYTICS", "Error getting batch stats: "+err.Error())
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to get stats", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event stats", stats))
}
