package booking_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/booking/qr"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	BookingService *booking.BookingService
	QueryService   *booking.QueryService
	QRGenerator    *qr.QRGenerator
	Logger         *logger.Logger
}

func NewHandler(bookingService *booking.BookingService, queryService *booking.QueryService, qrGen *qr.QRGenerator, log *logger.Logger) *Handler {
	return &Handler{
		BookingService: bookingService,
		QueryService:   queryService,
		QRGenerator:    qrGen,
		Logger:         log,
	}
}

// statusFor maps a booking error to its HTTP status. Sold out is a 400, as the existing
// clients expect.
func statusFor(err error) int {
	switch booking.OutcomeOf(err) {
	case booking.OutcomeBooked:
		return http.StatusCreated
	case booking.OutcomeAlreadyBooked:
		return http.StatusConflict
	case booking.OutcomeSoldOut:
		return http.StatusBadRequest
	case booking.OutcomeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		// cause stays in the log
		utils.WriteJSON(w, status, utils.ErrorResponse("Internal server error", booking.ErrServer.Error()))
		return
	}
	h.Logger.Debug("API", fmt.Sprintf("%s: %v", op, err))
	utils.WriteJSON(w, status, utils.ErrorResponse(messageFor(err), err.Error()))
}

func messageFor(err error) string {
	switch {
	case errors.Is(err, booking.ErrAlreadyBooked):
		return "You have already booked this event"
	case errors.Is(err, booking.ErrSoldOut):
		return "Event is sold out"
	case errors.Is(err, booking.ErrEventNotFound):
		return "Event not found"
	case errors.Is(err, booking.ErrBookingNotFound):
		return "Booking not found"
	default:
		return "Request failed"
	}
}

// BookEvent → POST /api/events/{eventId}/book
func (h *Handler) BookEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("BookEvent: eventId=%s userId=%s", eventID, userID))

	b, err := h.BookingService.AttemptBooking(r.Context(), userID, eventID)
	if err != nil {
		h.writeError(w, "BookEvent", err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Event booked successfully", b))
}

// CancelBooking → DELETE /api/events/{eventId}/book
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("CancelBooking: eventId=%s userId=%s", eventID, userID))

	b, err := h.BookingService.CancelBooking(r.Context(), userID, eventID)
	if err != nil {
		h.writeError(w, "CancelBooking", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking cancelled", b))
}

// GetSlotsLeft → GET /api/events/{eventId}/slots
func (h *Handler) GetSlotsLeft(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	slots, err := h.BookingService.SlotsLeft(r.Context(), eventID)
	if err != nil {
		h.writeError(w, "GetSlotsLeft", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Slots left", models.SlotsLeftResponse{EventID: eventID, SlotsLeft: slots}))
}

// ListEvents → GET /api/events?page=&perPage=&search=
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := queryInt(q.Get("page"), 1)
	perPage := queryInt(q.Get("perPage"), 10)

	list, err := h.QueryService.ListEvents(r.Context(), page, perPage, q.Get("search"))
	if err != nil {
		h.writeError(w, "ListEvents", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Events", list))
}

// GetEvent → GET /api/events/{eventId}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.QueryService.GetEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.writeError(w, "GetEvent", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event", event))
}

// GetUserBookings → GET /api/events/bookings
func (h *Handler) GetUserBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.QueryService.UserBookings(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "GetUserBookings", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Bookings", bookings))
}

// GetEventBookings → GET /api/events/{eventId}/bookings (admin)
func (h *Handler) GetEventBookings(w http.ResponseWriter, r *http.Request) {
	eb, err := h.QueryService.EventBookings(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.writeError(w, "GetEventBookings", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event bookings", eb))
}

// GetBookingQR → GET /api/events/{eventId}/book/qr, PNG of the caller's encrypted pass
func (h *Handler) GetBookingQR(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID := auth.UserID(r.Context())

	b, err := h.QueryService.GetBooking(r.Context(), userID, eventID)
	if err != nil {
		h.writeError(w, "GetBookingQR", err)
		return
	}

	png, err := h.QRGenerator.GenerateEncryptedQR(*b, queryInt(r.URL.Query().Get("size"), 256))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetBookingQR: failed to generate QR: %v", err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to generate QR code", err.Error()))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type checkinRequest struct {
	EncryptedQR string `json:"encrypted_qr"`
}

// VerifyPass → POST /api/events/{eventId}/checkin (admin). Confirms a scanned pass
// belongs to this event and the booking still exists.
func (h *Handler) VerifyPass(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	var req checkinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EncryptedQR == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", "encrypted_qr is required"))
		return
	}

	pass, err := h.QRGenerator.DecryptPass(req.EncryptedQR)
	if err != nil {
		h.Logger.LogSecurity("PASS_REJECTED", err.Error())
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid pass", "pass could not be verified"))
		return
	}
	if pass.EventID != eventID {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid pass", "pass is for another event"))
		return
	}

	b, err := h.QueryService.GetBooking(r.Context(), pass.UserID, eventID)
	if err != nil {
		h.writeError(w, "VerifyPass", err)
		return
	}
	if b.ID != pass.BookingID {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Booking not found", "pass refers to a cancelled booking"))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Pass valid", b))
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
