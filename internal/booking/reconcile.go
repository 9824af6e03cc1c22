package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/logger"
)

// Reconciler rebuilds a counter entry from the ledger. Concurrent reconciliations for
// the same event race last-write-wins; every writer stores ledger truth and the TTL
// bounds how long a stale write can live.
type Reconciler struct {
	Ledger  Ledger
	Counter SlotsCounter
	TTL     time.Duration
	Logger  *logger.Logger
}

// Reconcile returns the ledger's remaining slots. cached is false when the value could
// not be written to the counter, which callers treat as counter unavailable.
func (r *Reconciler) Reconcile(ctx context.Context, eventID string) (value int, cached bool, err error) {
	value, err = r.Ledger.RemainingSlots(ctx, eventID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return 0, false, ErrEventNotFound
		}
		return 0, false, serverError("remaining slots", err)
	}

	if r.Counter == nil {
		return value, false, nil
	}

	if err := r.Counter.Populate(ctx, eventID, value, r.TTL); err != nil {
		r.Logger.Warn("COUNTER", fmt.Sprintf("Populate failed for event %s, continuing on ledger only: %v", eventID, err))
		return value, false, nil
	}

	r.Logger.LogCounter("RECONCILE", eventID, fmt.Sprintf("populated %d slots (ttl %s)", value, r.TTL))
	return value, true, nil
}
