package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	BookingEventCreated   = "booking.created"
	BookingEventCancelled = "booking.cancelled"
)

// BookingEventDto is the payload published to Kafka for booking lifecycle changes.
type BookingEventDto struct {
	Type       string    `json:"type"`
	BookingID  string    `json:"booking_id,omitempty"`
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewBookingEventDto(eventType string, booking Booking) BookingEventDto {
	return BookingEventDto{
		Type:       eventType,
		BookingID:  booking.ID,
		EventID:    booking.EventID,
		UserID:     booking.UserID,
		OccurredAt: time.Now().UTC(),
	}
}

// InvalidationEventDto is consumed from the event-management service when it removes
// bookings on its own (event deletion, admin cancellation).
type InvalidationEventDto struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason,omitempty"`
}

// SlotsUpdate is pushed to SSE subscribers of an event.
type SlotsUpdate struct {
	EventID   string    `json:"eventId"`
	SlotsLeft int       `json:"slotsLeft"`
	At        time.Time `json:"at"`
}

func NewBookingID() string {
	return uuid.NewString()
}
