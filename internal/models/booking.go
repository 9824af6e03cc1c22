package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Booking is unique per (user_id, event_id); the unique index lives in the schema.
type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID        string    `bun:"id,pk" json:"id"`
	UserID    string    `bun:"user_id,notnull,unique:user_event" json:"userId"`
	EventID   string    `bun:"event_id,notnull,unique:user_event" json:"eventId"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

type EventBookings struct {
	Event    Event     `json:"event"`
	Bookings []Booking `json:"bookings"`
}

type UserBooking struct {
	Booking
	Event *Event `json:"event,omitempty"`
}
