package booking_test

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ms-booking/internal/booking"
	"ms-booking/internal/booking/db"
	rediswrap "ms-booking/internal/booking/redis"
	"ms-booking/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// ---------------- real collaborators ----------------

type fixture struct {
	ledger  *db.DB
	bun     *bun.DB
	counter *spyCounter
	mr      *miniredis.Miniredis
}

func setupLedger(t *testing.T) (*db.DB, *bun.DB) {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, db.CreateSchema(context.Background(), bunDB))
	t.Cleanup(func() { _ = bunDB.Close() })
	return &db.DB{Bun: bunDB}, bunDB
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	ledger, bunDB := setupLedger(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	return &fixture{
		ledger:  ledger,
		bun:     bunDB,
		counter: &spyCounter{Counter: rediswrap.NewCounter(client)},
		mr:      mr,
	}
}

func (f *fixture) service(opts ...booking.Option) *booking.BookingService {
	opts = append([]booking.Option{booking.WithSlotsTTL(time.Minute), booking.WithOpTimeout(5 * time.Second)}, opts...)
	return booking.NewBookingService(f.ledger, f.counter, opts...)
}

func (f *fixture) addEvent(t *testing.T, id string, total int) {
	t.Helper()
	_, err := f.bun.NewInsert().Model(&models.Event{
		ID:         id,
		Title:      "Event " + id,
		Date:       time.Now().Add(48 * time.Hour),
		TotalSlots: total,
		CreatedAt:  time.Now(),
	}).Exec(context.Background())
	require.NoError(t, err)
}

func (f *fixture) bookingCount(t *testing.T, eventID string) int {
	t.Helper()
	n, err := f.ledger.CountBookings(context.Background(), eventID)
	require.NoError(t, err)
	return n
}

func (f *fixture) counterValue(t *testing.T, eventID string) int {
	t.Helper()
	v, err := f.counter.Get(context.Background(), eventID)
	require.NoError(t, err)
	return v
}

// barrier releases all parties once n of them have arrived.
type barrier struct{ wg sync.WaitGroup }

func newBarrier(n int) *barrier {
	b := &barrier{}
	b.wg.Add(n)
	return b
}

func (b *barrier) arrive() {
	b.wg.Done()
	b.wg.Wait()
}

// spyCounter counts calls and can hold Get callers at a barrier.
type spyCounter struct {
	*rediswrap.Counter
	reserves   atomic.Int32
	releases   atomic.Int32
	getBarrier *barrier
}

func (s *spyCounter) Get(ctx context.Context, eventID string) (int, error) {
	v, err := s.Counter.Get(ctx, eventID)
	if s.getBarrier != nil {
		s.getBarrier.arrive()
	}
	return v, err
}

func (s *spyCounter) Reserve(ctx context.Context, eventID string) (int, error) {
	s.reserves.Add(1)
	return s.Counter.Reserve(ctx, eventID)
}

func (s *spyCounter) Release(ctx context.Context, eventID string) error {
	s.releases.Add(1)
	return s.Counter.Release(ctx, eventID)
}

type recordingPublisher struct {
	mu        sync.Mutex
	created   []models.Booking
	cancelled []models.Booking
}

func (p *recordingPublisher) PublishBookingCreated(_ context.Context, b models.Booking) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, b)
	return nil
}

func (p *recordingPublisher) PublishBookingCancelled(_ context.Context, b models.Booking) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, b)
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates []models.SlotsUpdate
}

func (n *recordingNotifier) EmitSlotsUpdate(u models.SlotsUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, u)
}

// ---------------- mocks ----------------

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) RemainingSlots(ctx context.Context, eventID string) (int, error) {
	args := m.Called(ctx, eventID)
	return args.Int(0), args.Error(1)
}

func (m *MockLedger) HasBooking(ctx context.Context, userID, eventID string) (bool, error) {
	args := m.Called(ctx, userID, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) CommitBooking(ctx context.Context, userID, eventID string) (*models.Booking, error) {
	args := m.Called(ctx, userID, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockLedger) DeleteBooking(ctx context.Context, userID, eventID string) (*models.Booking, error) {
	args := m.Called(ctx, userID, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

type MockCounter struct {
	mock.Mock
}

func (m *MockCounter) Get(ctx context.Context, eventID string) (int, error) {
	args := m.Called(ctx, eventID)
	return args.Int(0), args.Error(1)
}

func (m *MockCounter) Populate(ctx context.Context, eventID string, value int, ttl time.Duration) error {
	args := m.Called(ctx, eventID, value, ttl)
	return args.Error(0)
}

func (m *MockCounter) Reserve(ctx context.Context, eventID string) (int, error) {
	args := m.Called(ctx, eventID)
	return args.Int(0), args.Error(1)
}

func (m *MockCounter) Release(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *MockCounter) Invalidate(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}
