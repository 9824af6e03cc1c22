package booking_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/sse"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

// SSEHandler streams remaining-slot updates for an event
type SSEHandler struct {
	Logger         *logger.Logger
	EventEmitter   *sse.SlotsEventEmitter
	BookingService *booking.BookingService
}

func NewSSEHandler(log *logger.Logger, emitter *sse.SlotsEventEmitter, bookingService *booking.BookingService) *SSEHandler {
	return &SSEHandler{Logger: log, EventEmitter: emitter, BookingService: bookingService}
}

// HandleSlotsStream → GET /api/events/{eventId}/slots/stream
func (h *SSEHandler) HandleSlotsStream(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Streaming unsupported", "response writer cannot flush"))
		return
	}

	// Resolve the current value first so unknown events get a plain 404.
	current, err := h.BookingService.SlotsLeft(r.Context(), eventID)
	if err != nil {
		utils.WriteJSON(w, statusFor(err), utils.ErrorResponse(messageFor(err), err.Error()))
		return
	}

	ctx := r.Context()
	updates := h.EventEmitter.SubscribeToEvent(ctx, eventID)

	h.setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	h.writeEvent(w, "slots", models.SlotsUpdate{EventID: eventID, SlotsLeft: current})
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to slots stream for event: %s", eventID))

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			h.writeEvent(w, "slots", update)
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from slots stream for: %s", eventID))
			return
		}
	}
}

func (h *SSEHandler) writeEvent(w http.ResponseWriter, name string, payload interface{}) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize %s event: %v", name, err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, jsonData)
}

// Helper function to set up SSE headers
func (h *SSEHandler) setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
