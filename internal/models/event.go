package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event is owned by the event-management service; the booking core only reads it.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID          string    `bun:"id,pk" json:"id"`
	Title       string    `bun:"title,notnull" json:"title"`
	Description string    `bun:"description" json:"description"`
	Location    string    `bun:"location" json:"location"`
	Date        time.Time `bun:"date,notnull" json:"date"`
	TotalSlots  int       `bun:"total_slots,notnull" json:"totalSlots"`
	Tags        []string  `bun:"tags,type:jsonb,nullzero,default:'[]'" json:"tags"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

type EventList struct {
	Events  []Event `json:"events"`
	Total   int     `json:"total"`
	Page    int     `json:"page"`
	PerPage int     `json:"perPage"`
}

type SlotsLeftResponse struct {
	EventID   string `json:"eventId"`
	SlotsLeft int    `json:"slotsLeft"`
}
