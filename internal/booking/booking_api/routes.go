package booking_api

import (
	"net/http"

	"ms-booking/internal/auth"
	"ms-booking/internal/models"
	"ms-booking/internal/ratelimit"

	"github.com/go-chi/chi/v5"
)

type Middleware = func(http.Handler) http.Handler

// RegisterRoutes mounts the public, authenticated and admin booking routes. limiter wraps
// only the booking attempt and may be nil.
func (h *Handler) RegisterRoutes(r chi.Router, sseHandler *SSEHandler, authMw Middleware, limiter Middleware) {
	// public
	r.Get("/api/events", h.ListEvents)
	r.Get("/api/events/{eventId}", h.GetEvent)
	r.Get("/api/events/{eventId}/slots", h.GetSlotsLeft)
	if sseHandler != nil {
		r.Get("/api/events/{eventId}/slots/stream", sseHandler.HandleSlotsStream)
	}

	r.Group(func(r chi.Router) {
		r.Use(authMw)

		r.Get("/api/events/bookings", h.GetUserBookings)
		r.Delete("/api/events/{eventId}/book", h.CancelBooking)
		r.Get("/api/events/{eventId}/book/qr", h.GetBookingQR)

		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter)
			}
			r.Post("/api/events/{eventId}/book", h.BookEvent)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Get("/api/events/{eventId}/bookings", h.GetEventBookings)
			r.Post("/api/events/{eventId}/checkin", h.VerifyPass)
		})
	})
}

// UserKey charges rate limits to the authenticated user, or to the client address when
// the request carries no user.
func UserKey(r *http.Request) string {
	if id := auth.UserID(r.Context()); id != "" {
		return "user:" + id
	}
	return "ip:" + ratelimit.ClientIP(r)
}
