package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

// Service handles analytics operations
type Service struct {
	db *DB
}

// NewService creates a new analytics service
func NewService(db *bun.DB) *Service {
	return &Service{db: NewDB(db)}
}

// GetEventStats returns fill rate and daily booking counts for an event
func (s *Service) GetEventStats(ctx context.Context, eventID string) (*models.EventBookingStats, error) {
	event, err := s.db.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	times, err := s.db.GetBookingTimesByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load bookings for event %s: %w", eventID, err)
	}

	return buildStats(event, times), nil
}

// GetBatchEventStats returns stats for each existing event in eventIDs; unknown IDs are skipped
func (s *Service) GetBatchEventStats(ctx context.Context, eventIDs []string) ([]models.EventBookingStats, error) {
	if len(eventIDs) == 0 {
		return []models.EventBookingStats{}, nil
	}

	events, err := s.db.GetEventsByIDs(ctx, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	result := make([]models.EventBookingStats, 0, len(events))
	for i := range events {
		times, err := s.db.GetBookingTimesByEventID(ctx, events[i].ID)
		if err != nil {
			return nil, fmt.Errorf("load bookings for event %s: %w", events[i].ID, err)
		}
		result = append(result, *buildStats(&events[i], times))
	}
	return result, nil
}

func buildStats(event *models.Event, times []time.Time) *models.EventBookingStats {
	booked := len(times)
	remaining := event.TotalSlots - booked
	if remaining < 0 {
		remaining = 0
	}

	var fillRate float64
	if event.TotalSlots > 0 {
		fillRate = math.Round(float64(booked)/float64(event.TotalSlots)*10000) / 100
	}

	return &models.EventBookingStats{
		EventID:       event.ID,
		Title:         event.Title,
		TotalSlots:    event.TotalSlots,
		Booked:        booked,
		Remaining:     remaining,
		FillRate:      fillRate,
		BookingsByDay: bucketByDay(times),
	}
}

// bucketByDay groups sorted timestamps into UTC calendar days.
func bucketByDay(times []time.Time) []models.DailyBookingCount {
	days := []models.DailyBookingCount{}
	for _, t := range times {
		day := t.UTC().Format("2006-01-02")
		if n := len(days); n > 0 && days[n-1].Day == day {
			days[n-1].Count++
			continue
		}
		days = append(days, models.DailyBookingCount{Day: day, Count: 1})
	}
	return days
}
