package analytics

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

var ErrEventNotFound = errors.New("event not found")

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

// NewDB creates a new analytics DB handler
func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// GetEventsByIDs loads the events that exist among ids
func (db *DB) GetEventsByIDs(ctx context.Context, ids []string) ([]models.Event, error) {
	var events []models.Event
	err := db.bun.NewSelect().
		Model(&events).
		Where("id IN (?)", bun.In(ids)).
		Order("date ASC").
		Scan(ctx)
	return events, err
}

// GetEvent retrieves one event
func (db *DB) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := db.bun.NewSelect().
		Model(&event).
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return &event, err
}

// GetBookingTimesByEventID returns the creation time of every booking for an event.
// Bucketing happens in Go so the query stays portable across Postgres and SQLite.
func (db *DB) GetBookingTimesByEventID(ctx context.Context, eventID string) ([]time.Time, error) {
	var bookings []models.Booking
	err := db.bun.NewSelect().
		Model(&bookings).
		Column("created_at").
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	times := make([]time.Time, len(bookings))
	for i, b := range bookings {
		times[i] = b.CreatedAt
	}
	return times, nil
}
