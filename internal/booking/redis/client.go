package redis

import (
	"context"
	"fmt"
	"time"

	"ms-booking/internal/logger"

	"github.com/go-redis/redis/v8"
)

// Connect builds a client and checks it with PING. The client is returned even when the
// ping fails: go-redis dials lazily, so the counter comes back on its own once Redis is
// reachable. Until then every counter call errors and bookings run on the ledger alone.
func Connect(ctx context.Context, addr, password string, db int, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return client, fmt.Errorf("ping redis at %s: %w", addr, err)
	}

	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", addr, db))
	return client, nil
}
