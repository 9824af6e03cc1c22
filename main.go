package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-booking/internal/analytics"
	analytics_api "ms-booking/internal/analytics/api"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/booking/booking_api"
	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/booking/qr"
	rediswrap "ms-booking/internal/booking/redis"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/ratelimit"
	"ms-booking/internal/sse"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func connectDatabase(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		_ = sqldb.Close()
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println(".env file not found, using environment variables")
	}

	cfg := config.Load()

	logOpts := logger.DefaultOptions()
	logOpts.Dir = cfg.Log.Dir
	logOpts.MinLevel = logger.ParseLevel(cfg.Log.Level)
	log := logger.NewLoggerWithOptions(logOpts)
	defer log.Close()

	log.Info("APP", "Starting Booking Service initialization")

	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	// --- Ledger ---
	bunDB := connectDatabase(cfg.Database, log)
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(cfg.Database.DSN, log, migrations.WithDir(cfg.Database.MigrationsDir))
		if err := runner.Up(false); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		if err := runner.Close(); err != nil {
			log.Warn("DATABASE", fmt.Sprintf("Closing migrator: %v", err))
		}
	}
	ledger := &bookingdb.DB{Bun: bunDB}

	// --- Fast counter ---
	redisClient, err := rediswrap.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	if err != nil {
		log.Warn("REDIS", fmt.Sprintf("%v; bookings run on the ledger alone until Redis is reachable", err))
	}
	defer redisClient.Close()
	counter := rediswrap.NewCounter(redisClient)

	emitter := sse.NewSlotsEventEmitter()
	opts := []booking.Option{
		booking.WithLogger(log),
		booking.WithSlotsTTL(cfg.Booking.SlotsCacheTTL),
		booking.WithOpTimeout(cfg.Booking.OpTimeout),
		booking.WithNotifier(emitter),
	}

	// --- Kafka (optional) ---
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		topics := cfg.Kafka.Topics
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, []string{topics.BookingCreated, topics.BookingCancelled, topics.BookingsInvalidated}, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}

		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		opts = append(opts, booking.WithPublisher(kafka.NewBookingPublisher(producer, topics.BookingCreated, topics.BookingCancelled)))

		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, topics.BookingsInvalidated, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		log.Info("KAFKA", "Kafka producer and consumer initialized")
	}

	bookingService := booking.NewBookingService(ledger, counter, opts...)
	if consumer != nil {
		go consumer.Start(ctx, bookingService.HandleInvalidationMessage)
	}

	queryService := booking.NewQueryService(ledger)
	handler := booking_api.NewHandler(bookingService, queryService, qr.NewQRGenerator(cfg.QR.SecretKey), log)
	sseHandler := booking_api.NewSSEHandler(log, emitter, bookingService)
	analyticsHandler := analytics_api.NewHandler(analytics.NewService(bunDB), log)

	// --- Auth ---
	verifier, err := auth.NewVerifier(ctx, cfg.Auth.Mode, cfg.Auth.JWTSecret, cfg.Auth.OIDCIssuer)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to configure token verification: %v", err))
	}
	authMw := auth.Middleware(verifier, log)

	var limiter booking_api.Middleware
	if cfg.RateLimit.Enabled {
		store := ratelimit.NewStore(cfg.RateLimit.RPS, cfg.RateLimit.Burst,
			ratelimit.WithIdleTTL(cfg.RateLimit.IdleTTL),
			ratelimit.WithCleanupEvery(cfg.RateLimit.CleanupEvery))
		store.StartJanitor(ctx)
		limiter = ratelimit.Middleware(store, booking_api.UserKey, log)
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler(bunDB, redisClient))
	handler.RegisterRoutes(r, sseHandler, authMw, limiter)
	r.Group(func(r chi.Router) {
		r.Use(authMw)
		r.Use(auth.RequireRole(models.RoleAdmin))
		analyticsHandler.RegisterRoutes(r)
	})

	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		// no WriteTimeout: SSE streams stay open
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	stopBackground()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Booking Service shutdown complete")
	}
}

func healthHandler(db *bun.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		dbState, counterState := "up", "up"
		if err := db.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			dbState = "down"
		}
		// A lost counter only degrades throughput.
		if err := rdb.Ping(ctx).Err(); err != nil {
			counterState = "down"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"database":%q,"counter":%q}`, dbState, counterState)
	}
}
