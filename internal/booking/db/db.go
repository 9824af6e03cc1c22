package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-booking/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

var (
	ErrNotFound        = errors.New("event not found")
	ErrBookingNotFound = errors.New("booking not found")
	// ErrConflict means the (user_id, event_id) pair is already taken.
	ErrConflict = errors.New("booking already exists for user and event")
	ErrSoldOut  = errors.New("event has no remaining slots")
)

// DB is the ledger: the durable record of events and bookings.
type DB struct {
	Bun *bun.DB
}

// ---------------- EVENTS ----------------

// GetEvent → fetch one event by its ID
func (d *DB) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return &event, nil
}

// ListEvents → page through events ordered by date, optionally filtered by a title
// substring or an exact tag, both case-insensitive
func (d *DB) ListEvents(ctx context.Context, page, perPage int, search string) (*models.EventList, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}

	events := []models.Event{}
	q := d.Bun.NewSelect().
		Model(&events).
		Order("date ASC").
		Offset((page - 1) * perPage).
		Limit(perPage)
	if search = strings.ToLower(strings.TrimSpace(search)); search != "" {
		// tags is a JSON array, so an element match is its quoted form in the text
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(title) LIKE ?", "%"+search+"%").
				WhereOr("LOWER(CAST(tags AS TEXT)) LIKE ?", `%"`+search+`"%`)
		})
	}

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	return &models.EventList{
		Events:  events,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	}, nil
}

// ---------------- CAPACITY ----------------

// CountBookings → number of bookings held for an event
func (d *DB) CountBookings(ctx context.Context, eventID string) (int, error) {
	count, err := d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Where("event_id = ?", eventID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count bookings for event %s: %w", eventID, err)
	}
	return count, nil
}

// RemainingSlots → total_slots minus existing bookings, never below zero
func (d *DB) RemainingSlots(ctx context.Context, eventID string) (int, error) {
	event, err := d.GetEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}

	count, err := d.CountBookings(ctx, eventID)
	if err != nil {
		return 0, err
	}

	remaining := event.TotalSlots - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ---------------- BOOKINGS ----------------

// HasBooking → whether the user already holds a booking for the event
func (d *DB) HasBooking(ctx context.Context, userID, eventID string) (bool, error) {
	exists, err := d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Where("user_id = ?", userID).
		Where("event_id = ?", eventID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check booking for user %s event %s: %w", userID, eventID, err)
	}
	return exists, nil
}

// GetBooking → fetch the user's booking for an event
func (d *DB) GetBooking(ctx context.Context, userID, eventID string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("user_id = ?", userID).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return &booking, nil
}

// CommitBooking inserts a booking inside a transaction that holds the event row lock,
// so the capacity recount and the insert are one decision per event. The unique index
// on (user_id, event_id) is the last word on duplicates.
func (d *DB) CommitBooking(ctx context.Context, userID, eventID string) (*models.Booking, error) {
	booking := models.Booking{
		ID:        models.NewBookingID(),
		UserID:    userID,
		EventID:   eventID,
		CreatedAt: time.Now().UTC(),
	}

	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var event models.Event
		q := tx.NewSelect().
			Model(&event).
			Where("id = ?", eventID).
			Limit(1)
		if d.Bun.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock event %s: %w", eventID, err)
		}

		exists, err := tx.NewSelect().
			Model((*models.Booking)(nil)).
			Where("user_id = ?", userID).
			Where("event_id = ?", eventID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("check duplicate: %w", err)
		}
		if exists {
			return ErrConflict
		}

		count, err := tx.NewSelect().
			Model((*models.Booking)(nil)).
			Where("event_id = ?", eventID).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("count bookings: %w", err)
		}
		if count >= event.TotalSlots {
			return ErrSoldOut
		}

		if _, err := tx.NewInsert().Model(&booking).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &booking, nil
}

// DeleteBooking → remove the user's booking and return what was removed
func (d *DB) DeleteBooking(ctx context.Context, userID, eventID string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model(&booking).
			Where("user_id = ?", userID).
			Where("event_id = ?", eventID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrBookingNotFound
			}
			return fmt.Errorf("find booking: %w", err)
		}

		_, err = tx.NewDelete().
			Model((*models.Booking)(nil)).
			Where("id = ?", booking.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete booking %s: %w", booking.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ---------------- RELATION QUERIES ----------------

// ListBookingsByEvent → the event and its bookings, newest first
func (d *DB) ListBookingsByEvent(ctx context.Context, eventID string) (*models.EventBookings, error) {
	event, err := d.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	bookings := []models.Booking{}
	err = d.Bun.NewSelect().
		Model(&bookings).
		Where("event_id = ?", eventID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookings for event %s: %w", eventID, err)
	}

	return &models.EventBookings{Event: *event, Bookings: bookings}, nil
}

// ListBookingsByUser → the user's bookings with their events, newest first
func (d *DB) ListBookingsByUser(ctx context.Context, userID string) ([]models.UserBooking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookings for user %s: %w", userID, err)
	}

	if len(bookings) == 0 {
		return []models.UserBooking{}, nil
	}

	eventIDs := make([]string, len(bookings))
	for i, b := range bookings {
		eventIDs[i] = b.EventID
	}

	var events []models.Event
	err = d.Bun.NewSelect().
		Model(&events).
		Where("id IN (?)", bun.In(eventIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load events for user %s: %w", userID, err)
	}

	eventsByID := make(map[string]*models.Event, len(events))
	for i := range events {
		eventsByID[events[i].ID] = &events[i]
	}

	result := make([]models.UserBooking, len(bookings))
	for i, b := range bookings {
		result[i] = models.UserBooking{Booking: b, Event: eventsByID[b.EventID]}
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
