package booking_test

import (
	"context"
	"testing"

	"ms-booking/internal/booking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryService(t *testing.T) {
	f := setupFixture(t)
	f.addEvent(t, "e1", 3)
	f.addEvent(t, "e2", 1)
	svc := f.service()
	q := booking.NewQueryService(f.ledger)
	ctx := context.Background()

	_, err := svc.AttemptBooking(ctx, "alice", "e1")
	require.NoError(t, err)
	_, err = svc.AttemptBooking(ctx, "alice", "e2")
	require.NoError(t, err)
	_, err = svc.AttemptBooking(ctx, "bob", "e1")
	require.NoError(t, err)

	t.Run("event", func(t *testing.T) {
		ev, err := q.GetEvent(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, 3, ev.TotalSlots)

		_, err = q.GetEvent(ctx, "ghost")
		assert.ErrorIs(t, err, booking.ErrEventNotFound)
	})

	t.Run("booking", func(t *testing.T) {
		b, err := q.GetBooking(ctx, "alice", "e2")
		require.NoError(t, err)
		assert.Equal(t, "alice", b.UserID)

		_, err = q.GetBooking(ctx, "bob", "e2")
		assert.ErrorIs(t, err, booking.ErrBookingNotFound)
	})

	t.Run("event bookings", func(t *testing.T) {
		eb, err := q.EventBookings(ctx, "e1")
		require.NoError(t, err)
		assert.Len(t, eb.Bookings, 2)
	})

	t.Run("user bookings", func(t *testing.T) {
		ub, err := q.UserBookings(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, ub, 2)
	})

	t.Run("list caps page size", func(t *testing.T) {
		list, err := q.ListEvents(ctx, 1, 1000, "")
		require.NoError(t, err)
		assert.Len(t, list.Events, 2)
	})
}
