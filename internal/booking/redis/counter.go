package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrMiss is returned when no live counter entry exists for the event.
var ErrMiss = errors.New("slots counter miss")

// reserveScript decrements only an existing key. A plain DECR on an expired key would
// create a negative entry with no TTL.
var reserveScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("DECR", KEYS[1])
end
return false
`)

var releaseScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("INCR", KEYS[1])
end
return false
`)

// Counter is the fast, TTL-bounded view of remaining slots per event.
type Counter struct {
	Client *redis.Client
}

func NewCounter(client *redis.Client) *Counter {
	return &Counter{Client: client}
}

func SlotsKey(eventID string) string {
	return fmt.Sprintf("event:%s:slots", eventID)
}

// Get returns the cached remaining slots or ErrMiss.
func (c *Counter) Get(ctx context.Context, eventID string) (int, error) {
	val, err := c.Client.Get(ctx, SlotsKey(eventID)).Int()
	if err == redis.Nil {
		return 0, ErrMiss
	}
	if err != nil {
		return 0, fmt.Errorf("get slots for event %s: %w", eventID, err)
	}
	return val, nil
}

// Populate writes a ledger-derived value with a TTL. Last write wins.
func (c *Counter) Populate(ctx context.Context, eventID string, value int, ttl time.Duration) error {
	if err := c.Client.Set(ctx, SlotsKey(eventID), value, ttl).Err(); err != nil {
		return fmt.Errorf("populate slots for event %s: %w", eventID, err)
	}
	return nil
}

// Reserve atomically decrements the entry and returns the post-decrement value.
func (c *Counter) Reserve(ctx context.Context, eventID string) (int, error) {
	val, err := reserveScript.Run(ctx, c.Client, []string{SlotsKey(eventID)}).Int()
	if err == redis.Nil {
		return 0, ErrMiss
	}
	if err != nil {
		return 0, fmt.Errorf("reserve slot for event %s: %w", eventID, err)
	}
	return val, nil
}

// Release undoes a Reserve. A missing entry needs no compensation: the next
// reconciliation recomputes it from the ledger.
func (c *Counter) Release(ctx context.Context, eventID string) error {
	err := releaseScript.Run(ctx, c.Client, []string{SlotsKey(eventID)}).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("release slot for event %s: %w", eventID, err)
	}
	return nil
}

// Invalidate drops the entry so the next reader reconciles from the ledger.
func (c *Counter) Invalidate(ctx context.Context, eventID string) error {
	if err := c.Client.Del(ctx, SlotsKey(eventID)).Err(); err != nil {
		return fmt.Errorf("invalidate slots for event %s: %w", eventID, err)
	}
	return nil
}

// TTL reports the remaining lifetime of the entry; zero or negative means none.
func (c *Counter) TTL(ctx context.Context, eventID string) (time.Duration, error) {
	return c.Client.TTL(ctx, SlotsKey(eventID)).Result()
}
