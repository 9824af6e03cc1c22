package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"ms-booking/internal/booking/db"
	rediswrap "ms-booking/internal/booking/redis"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// Ledger is the authoritative store. CommitBooking must enforce uniqueness of
// (userID, eventID) and capacity at the storage layer.
type Ledger interface {
	RemainingSlots(ctx context.Context, eventID string) (int, error)
	HasBooking(ctx context.Context, userID, eventID string) (bool, error)
	CommitBooking(ctx context.Context, userID, eventID string) (*models.Booking, error)
	DeleteBooking(ctx context.Context, userID, eventID string) (*models.Booking, error)
}

// SlotsCounter is the fast capacity gate. Reserve and Release must be atomic per event.
type SlotsCounter interface {
	Get(ctx context.Context, eventID string) (int, error)
	Populate(ctx context.Context, eventID string, value int, ttl time.Duration) error
	Reserve(ctx context.Context, eventID string) (int, error)
	Release(ctx context.Context, eventID string) error
	Invalidate(ctx context.Context, eventID string) error
}

type EventPublisher interface {
	PublishBookingCreated(ctx context.Context, booking models.Booking) error
	PublishBookingCancelled(ctx context.Context, booking models.Booking) error
}

type SlotsNotifier interface {
	EmitSlotsUpdate(update models.SlotsUpdate)
}

const (
	defaultSlotsTTL  = 60 * time.Second
	defaultOpTimeout = 3 * time.Second
)

type BookingService struct {
	Ledger    Ledger
	Counter   SlotsCounter
	Publisher EventPublisher
	Notifier  SlotsNotifier
	Logger    *logger.Logger

	slotsTTL   time.Duration
	opTimeout  time.Duration
	reconciler *Reconciler
}

type Option func(*BookingService)

// WithSlotsTTL sets the lifetime of counter entries written by reconciliation.
func WithSlotsTTL(d time.Duration) Option {
	return func(s *BookingService) {
		if d > 0 {
			s.slotsTTL = d
		}
	}
}

// WithOpTimeout bounds each individual ledger or counter call.
func WithOpTimeout(d time.Duration) Option {
	return func(s *BookingService) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

func WithPublisher(p EventPublisher) Option {
	return func(s *BookingService) { s.Publisher = p }
}

func WithNotifier(n SlotsNotifier) Option {
	return func(s *BookingService) { s.Notifier = n }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *BookingService) {
		if l != nil {
			s.Logger = l
		}
	}
}

// NewBookingService wires the admission controller. counter may be nil, in which case
// every request runs on the ledger alone.
func NewBookingService(ledger Ledger, counter SlotsCounter, opts ...Option) *BookingService {
	s := &BookingService{
		Ledger:    ledger,
		Counter:   counter,
		Logger:    logger.NewLoggerWithWriter(io.Discard),
		slotsTTL:  defaultSlotsTTL,
		opTimeout: defaultOpTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reconciler = &Reconciler{
		Ledger:  ledger,
		Counter: counter,
		TTL:     s.slotsTTL,
		Logger:  s.Logger,
	}
	return s
}

// ---------------- ADMISSION ----------------

// AttemptBooking runs duplicate check, capacity check, reservation and durable commit.
// It returns the booking, or one of ErrAlreadyBooked, ErrSoldOut, ErrEventNotFound, or an
// error wrapping ErrServer. Any reservation taken is released on every failure path.
func (s *BookingService) AttemptBooking(ctx context.Context, userID, eventID string) (*models.Booking, error) {
	// Step 1: duplicate check (optimistic; the ledger index is authoritative)
	exists, err := s.hasBooking(ctx, userID, eventID)
	if err != nil {
		s.Logger.Error("BOOKING", fmt.Sprintf("Duplicate check failed for user %s event %s: %v", userID, eventID, err))
		return nil, serverError("duplicate check", err)
	}
	if exists {
		s.Logger.LogBooking("REJECT", eventID, userID, "already booked")
		return nil, ErrAlreadyBooked
	}

	// Step 2: capacity check, reconciling from the ledger on a miss
	slots, counted, err := s.capacity(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if slots <= 0 {
		s.Logger.LogBooking("REJECT", eventID, userID, "sold out (capacity check)")
		return nil, ErrSoldOut
	}

	// Step 3: reserve on the counter
	reserved := false
	left := -1
	if counted {
		reserved, left, err = s.reserve(ctx, eventID)
		if err != nil {
			if errors.Is(err, ErrSoldOut) {
				s.Logger.LogBooking("REJECT", eventID, userID, "sold out (reservation)")
			}
			return nil, err
		}
	}

	// Step 4: durable commit
	booking, err := s.commit(ctx, userID, eventID)
	if err != nil {
		if reserved {
			s.release(ctx, eventID)
			// The ledger is full but the counter still showed room; drop the entry so the
			// next request rebuilds it at zero.
			if errors.Is(err, db.ErrSoldOut) {
				s.invalidate(ctx, eventID)
			}
		}
		return nil, s.commitFailure(userID, eventID, err)
	}

	s.Logger.LogBooking("BOOKED", eventID, userID, fmt.Sprintf("booking %s committed", booking.ID))
	s.afterCommit(ctx, *booking, left, reserved)
	return booking, nil
}

func (s *BookingService) hasBooking(ctx context.Context, userID, eventID string) (bool, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	return s.Ledger.HasBooking(opCtx, userID, eventID)
}

// capacity returns the remaining slots and whether the counter is usable for reservation.
func (s *BookingService) capacity(ctx context.Context, eventID string) (int, bool, error) {
	if s.Counter != nil {
		opCtx, cancel := s.opContext(ctx)
		slots, err := s.Counter.Get(opCtx, eventID)
		cancel()
		if err == nil {
			return slots, true, nil
		}
		if !errors.Is(err, rediswrap.ErrMiss) {
			s.Logger.Warn("COUNTER", fmt.Sprintf("Counter unavailable for event %s, reconciling from ledger: %v", eventID, err))
		}
	}
	return s.reconcile(ctx, eventID)
}

func (s *BookingService) reconcile(ctx context.Context, eventID string) (int, bool, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	return s.reconciler.Reconcile(opCtx, eventID)
}

// reserve takes one slot on the counter. reserved is false when the counter could not be
// used and the attempt continues on the ledger alone.
func (s *BookingService) reserve(ctx context.Context, eventID string) (reserved bool, left int, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		opCtx, cancel := s.opContext(ctx)
		left, err = s.Counter.Reserve(opCtx, eventID)
		cancel()

		switch {
		case err == nil:
			if left < 0 {
				s.release(ctx, eventID)
				return false, left, ErrSoldOut
			}
			s.Logger.LogCounter("RESERVE", eventID, fmt.Sprintf("%d slots left", left))
			return true, left, nil

		case errors.Is(err, rediswrap.ErrMiss):
			// The entry expired between the capacity check and the reservation.
			if attempt > 0 {
				s.Logger.Warn("COUNTER", fmt.Sprintf("Counter for event %s missing after reconcile, continuing on ledger only", eventID))
				return false, -1, nil
			}
			slots, cached, rerr := s.reconcile(ctx, eventID)
			if rerr != nil {
				return false, -1, rerr
			}
			if slots <= 0 {
				return false, -1, ErrSoldOut
			}
			if !cached {
				return false, -1, nil
			}

		default:
			// The decrement may have been applied before the failure surfaced.
			s.Logger.Warn("COUNTER", fmt.Sprintf("Reserve failed for event %s, compensating and continuing on ledger only: %v", eventID, err))
			s.release(ctx, eventID)
			return false, -1, nil
		}
	}
	return false, -1, nil
}

func (s *BookingService) commit(ctx context.Context, userID, eventID string) (*models.Booking, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	return s.Ledger.CommitBooking(opCtx, userID, eventID)
}

func (s *BookingService) commitFailure(userID, eventID string, err error) error {
	switch {
	case errors.Is(err, db.ErrConflict):
		s.Logger.LogBooking("REJECT", eventID, userID, "already booked (ledger conflict)")
		return ErrAlreadyBooked
	case errors.Is(err, db.ErrSoldOut):
		s.Logger.LogBooking("REJECT", eventID, userID, "sold out (ledger)")
		return ErrSoldOut
	case errors.Is(err, db.ErrNotFound):
		return ErrEventNotFound
	default:
		s.Logger.Error("BOOKING", fmt.Sprintf("Commit failed for user %s event %s: %v", userID, eventID, err))
		return serverError("commit booking", err)
	}
}

// release compensates a reservation. It runs detached from the caller's cancellation so
// a timed-out or abandoned request still gives its slot back. If the increment fails the
// entry is dropped so the next request rebuilds it from the ledger.
func (s *BookingService) release(ctx context.Context, eventID string) {
	if s.Counter == nil {
		return
	}
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
	defer cancel()

	if err := s.Counter.Release(relCtx, eventID); err != nil {
		s.Logger.Error("COUNTER", fmt.Sprintf("Release failed for event %s, invalidating entry: %v", eventID, err))
		if ierr := s.Counter.Invalidate(relCtx, eventID); ierr != nil {
			s.Logger.Error("COUNTER", fmt.Sprintf("Invalidate failed for event %s, entry stays stale until TTL: %v", eventID, ierr))
		}
		return
	}
	s.Logger.LogCounter("RELEASE", eventID, "reservation compensated")
}

func (s *BookingService) afterCommit(ctx context.Context, booking models.Booking, left int, known bool) {
	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
	defer cancel()

	if s.Publisher != nil {
		if err := s.Publisher.PublishBookingCreated(bgCtx, booking); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Publish booking created failed for %s: %v", booking.ID, err))
		}
	}
	s.notify(bgCtx, booking.EventID, left, known)
}

func (s *BookingService) notify(ctx context.Context, eventID string, left int, known bool) {
	if s.Notifier == nil {
		return
	}
	if !known {
		slots, err := s.Ledger.RemainingSlots(ctx, eventID)
		if err != nil {
			s.Logger.Warn("SSE", fmt.Sprintf("Skipping slots update for event %s: %v", eventID, err))
			return
		}
		left = slots
	}
	s.Notifier.EmitSlotsUpdate(models.SlotsUpdate{EventID: eventID, SlotsLeft: left, At: time.Now().UTC()})
}

// ---------------- QUERIES ----------------

// SlotsLeft reports remaining capacity for display. It reads the counter first and
// falls back to reconciliation; it never reserves and never touches bookings.
func (s *BookingService) SlotsLeft(ctx context.Context, eventID string) (int, error) {
	if s.Counter != nil {
		opCtx, cancel := s.opContext(ctx)
		slots, err := s.Counter.Get(opCtx, eventID)
		cancel()
		if err == nil {
			if slots < 0 {
				slots = 0
			}
			return slots, nil
		}
		if !errors.Is(err, rediswrap.ErrMiss) {
			s.Logger.Warn("COUNTER", fmt.Sprintf("Counter unavailable for event %s: %v", eventID, err))
		}
	}

	slots, _, err := s.reconcile(ctx, eventID)
	if err != nil {
		return 0, err
	}
	return slots, nil
}

// ---------------- CANCELLATION ----------------

// CancelBooking removes the user's booking and drops the counter entry so capacity is
// recomputed from the ledger on the next request.
func (s *BookingService) CancelBooking(ctx context.Context, userID, eventID string) (*models.Booking, error) {
	opCtx, cancel := s.opContext(ctx)
	booking, err := s.Ledger.DeleteBooking(opCtx, userID, eventID)
	cancel()
	if err != nil {
		if errors.Is(err, db.ErrBookingNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, serverError("delete booking", err)
	}

	s.invalidate(ctx, eventID)
	s.Logger.LogBooking("CANCELLED", eventID, userID, fmt.Sprintf("booking %s removed", booking.ID))

	bgCtx, cancelBg := context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
	defer cancelBg()
	if s.Publisher != nil {
		if err := s.Publisher.PublishBookingCancelled(bgCtx, *booking); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Publish booking cancelled failed for %s: %v", booking.ID, err))
		}
	}
	s.notify(bgCtx, eventID, 0, false)

	return booking, nil
}

// HandleInvalidationMessage decodes an invalidation event from the message bus.
func (s *BookingService) HandleInvalidationMessage(ctx context.Context, value []byte) error {
	var msg models.InvalidationEventDto
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("decode invalidation event: %w", err)
	}
	if msg.EventID == "" {
		return errors.New("invalidation event without event_id")
	}
	s.Logger.Info("COUNTER", fmt.Sprintf("Invalidating slots for event %s (%s)", msg.EventID, msg.Reason))
	s.invalidate(ctx, msg.EventID)
	return nil
}

func (s *BookingService) invalidate(ctx context.Context, eventID string) {
	if s.Counter == nil {
		return
	}
	invCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
	defer cancel()
	if err := s.Counter.Invalidate(invCtx, eventID); err != nil {
		s.Logger.Error("COUNTER", fmt.Sprintf("Invalidate failed for event %s, entry stays stale until TTL: %v", eventID, err))
	}
}

func (s *BookingService) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}
