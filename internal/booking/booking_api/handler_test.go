package booking_api

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/booking/db"
	"ms-booking/internal/booking/qr"
	rediswrap "ms-booking/internal/booking/redis"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/sse"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// headerAuth trusts X-User and X-Role so routes can be exercised without tokens.
func headerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get("X-User")
		if user == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		p := models.Principal{ID: user, Role: r.Header.Get("X-Role")}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

type testAPI struct {
	router  chi.Router
	bun     *bun.DB
	emitter *sse.SlotsEventEmitter
	qr      *qr.QRGenerator
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, db.CreateSchema(ctx, bunDB))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
		_ = bunDB.Close()
	})

	log := logger.NewLoggerWithWriter(io.Discard)
	ledger := &db.DB{Bun: bunDB}
	emitter := sse.NewSlotsEventEmitter()
	svc := booking.NewBookingService(ledger, rediswrap.NewCounter(client),
		booking.WithLogger(log),
		booking.WithNotifier(emitter),
	)
	qrGen := qr.NewQRGenerator("test-secret")

	h := NewHandler(svc, booking.NewQueryService(ledger), qrGen, log)
	r := chi.NewRouter()
	h.RegisterRoutes(r, NewSSEHandler(log, emitter, svc), headerAuth, nil)

	for _, ev := range []models.Event{
		{ID: "e1", Title: "Go Meetup", TotalSlots: 1, Date: time.Now().Add(24 * time.Hour), CreatedAt: time.Now()},
		{ID: "e2", Title: "Rust Night", TotalSlots: 5, Date: time.Now().Add(48 * time.Hour), CreatedAt: time.Now()},
	} {
		ev := ev
		_, err := bunDB.NewInsert().Model(&ev).Exec(ctx)
		require.NoError(t, err)
	}

	return &testAPI{router: r, bun: bunDB, emitter: emitter, qr: qrGen}
}

func (a *testAPI) do(t *testing.T, method, path, user, role string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if user != "" {
		req.Header.Set("X-User", user)
	}
	if role != "" {
		req.Header.Set("X-Role", role)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusCreated, statusFor(nil))
	assert.Equal(t, http.StatusConflict, statusFor(booking.ErrAlreadyBooked))
	assert.Equal(t, http.StatusBadRequest, statusFor(booking.ErrSoldOut))
	assert.Equal(t, http.StatusNotFound, statusFor(booking.ErrEventNotFound))
	assert.Equal(t, http.StatusNotFound, statusFor(booking.ErrBookingNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("%w: boom", booking.ErrServer)))
}

func TestUserKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/events/e1/book", nil)
	r.RemoteAddr = "10.0.0.7:41000"
	assert.Equal(t, "ip:10.0.0.7", UserKey(r))

	r = r.WithContext(auth.WithPrincipal(r.Context(), models.Principal{ID: "u1"}))
	assert.Equal(t, "user:u1", UserKey(r))
}

func TestBookEvent(t *testing.T) {
	api := setupAPI(t)

	rec := api.do(t, http.MethodPost, "/api/events/e1/book", "alice", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var b models.Booking
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &b))
	assert.Equal(t, "alice", b.UserID)
	assert.Equal(t, "e1", b.EventID)

	rec = api.do(t, http.MethodPost, "/api/events/e1/book", "alice", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/events/e1/book", "bob", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Event is sold out", decode(t, rec).Message)

	rec = api.do(t, http.MethodPost, "/api/events/ghost/book", "bob", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/events/e1/book", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCancelBookingRoute(t *testing.T) {
	api := setupAPI(t)

	require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, "/api/events/e1/book", "alice", "", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodDelete, "/api/events/e1/book", "alice", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, "/api/events/e1/book", "alice", "", nil).Code)

	// the slot came back
	assert.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, "/api/events/e1/book", "bob", "", nil).Code)
}

func TestGetSlotsLeft(t *testing.T) {
	api := setupAPI(t)

	rec := api.do(t, http.MethodGet, "/api/events/e2/slots", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.SlotsLeftResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &resp))
	assert.Equal(t, 5, resp.SlotsLeft)

	api.do(t, http.MethodPost, "/api/events/e2/book", "alice", "", nil)
	rec = api.do(t, http.MethodGet, "/api/events/e2/slots", "", "", nil)
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &resp))
	assert.Equal(t, 4, resp.SlotsLeft)

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/events/ghost/slots", "", "", nil).Code)
}

func TestListAndGetEvents(t *testing.T) {
	api := setupAPI(t)

	rec := api.do(t, http.MethodGet, "/api/events?search=go", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.EventList
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &list))
	require.Len(t, list.Events, 1)
	assert.Equal(t, "e1", list.Events[0].ID)

	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/events/e2", "", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/events/ghost", "", "", nil).Code)
}

func TestUserBookingsRoute(t *testing.T) {
	api := setupAPI(t)
	api.do(t, http.MethodPost, "/api/events/e1/book", "alice", "", nil)
	api.do(t, http.MethodPost, "/api/events/e2/book", "alice", "", nil)

	rec := api.do(t, http.MethodGet, "/api/events/bookings", "alice", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ub []models.UserBooking
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &ub))
	assert.Len(t, ub, 2)
}

func TestAdminRoutes(t *testing.T) {
	api := setupAPI(t)
	api.do(t, http.MethodPost, "/api/events/e2/book", "alice", "", nil)

	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/api/events/e2/bookings", "alice", "USER", nil).Code)

	rec := api.do(t, http.MethodGet, "/api/events/e2/bookings", "admin", models.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var eb models.EventBookings
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &eb))
	assert.Len(t, eb.Bookings, 1)
}

func TestBookingQRAndCheckin(t *testing.T) {
	api := setupAPI(t)

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/events/e2/book/qr", "alice", "", nil).Code)

	rec := api.do(t, http.MethodPost, "/api/events/e2/book", "alice", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var b models.Booking
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &b))

	rec = api.do(t, http.MethodGet, "/api/events/e2/book/qr?size=128", "alice", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	token, err := api.qr.EncryptPass(qr.Pass{BookingID: b.ID, EventID: "e2", UserID: "alice", IssuedAt: time.Now()})
	require.NoError(t, err)
	body, _ := json.Marshal(map[string]string{"encrypted_qr": token})

	assert.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/events/e2/checkin", "admin", models.RoleAdmin, body).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/api/events/e1/checkin", "admin", models.RoleAdmin, body).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/api/events/e2/checkin", "admin", models.RoleAdmin, []byte(`{"encrypted_qr":"garbage"}`)).Code)

	require.Equal(t, http.StatusOK, api.do(t, http.MethodDelete, "/api/events/e2/book", "alice", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/api/events/e2/checkin", "admin", models.RoleAdmin, body).Code)
}

func readSSEData(t *testing.T, r *bufio.Reader) models.SlotsUpdate {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			var u models.SlotsUpdate
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &u))
			return u
		}
	}
}

func TestSlotsStream(t *testing.T) {
	api := setupAPI(t)
	srv := httptest.NewServer(api.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events/e2/slots/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	reader := bufio.NewReader(resp.Body)
	assert.Equal(t, 5, readSSEData(t, reader).SlotsLeft)

	require.Eventually(t, func() bool { return api.emitter.GetEventClientCount("e2") == 1 }, time.Second, 10*time.Millisecond)

	book := httptest.NewRequest(http.MethodPost, "/api/events/e2/book", nil)
	book.Header.Set("X-User", "alice")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, book)
	require.Equal(t, http.StatusCreated, rec.Code)

	update := readSSEData(t, reader)
	assert.Equal(t, "e2", update.EventID)
	assert.Equal(t, 4, update.SlotsLeft)
}

func TestSlotsStreamUnknownEvent(t *testing.T) {
	api := setupAPI(t)
	srv := httptest.NewServer(api.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events/ghost/slots/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
