package booking

import (
	"context"
	"errors"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/models"
)

// ReadStore is the read side of the ledger used by listing endpoints.
type ReadStore interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	ListEvents(ctx context.Context, page, perPage int, search string) (*models.EventList, error)
	GetBooking(ctx context.Context, userID, eventID string) (*models.Booking, error)
	ListBookingsByEvent(ctx context.Context, eventID string) (*models.EventBookings, error)
	ListBookingsByUser(ctx context.Context, userID string) ([]models.UserBooking, error)
}

// QueryService serves read-only views. None of its methods touch the counter.
type QueryService struct {
	Store ReadStore
}

func NewQueryService(store ReadStore) *QueryService {
	return &QueryService{Store: store}
}

func (q *QueryService) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	event, err := q.Store.GetEvent(ctx, eventID)
	return event, mapReadError("get event", err)
}

func (q *QueryService) ListEvents(ctx context.Context, page, perPage int, search string) (*models.EventList, error) {
	if perPage > 100 {
		perPage = 100
	}
	list, err := q.Store.ListEvents(ctx, page, perPage, search)
	return list, mapReadError("list events", err)
}

// GetBooking returns the user's booking for the event or ErrBookingNotFound.
func (q *QueryService) GetBooking(ctx context.Context, userID, eventID string) (*models.Booking, error) {
	b, err := q.Store.GetBooking(ctx, userID, eventID)
	return b, mapReadError("get booking", err)
}

func (q *QueryService) EventBookings(ctx context.Context, eventID string) (*models.EventBookings, error) {
	eb, err := q.Store.ListBookingsByEvent(ctx, eventID)
	return eb, mapReadError("list event bookings", err)
}

func (q *QueryService) UserBookings(ctx context.Context, userID string) ([]models.UserBooking, error) {
	ub, err := q.Store.ListBookingsByUser(ctx, userID)
	return ub, mapReadError("list user bookings", err)
}

func mapReadError(step string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrNotFound):
		return ErrEventNotFound
	case errors.Is(err, db.ErrBookingNotFound):
		return ErrBookingNotFound
	default:
		return serverError(step, err)
	}
}
