package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestCounterIntegration runs the counter scripts against a real Redis container
func TestCounterIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Docker not available: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	defer client.Close()
	c := NewCounter(client)

	_, err = c.Reserve(ctx, "e1")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Populate(ctx, "e1", 2, time.Minute))

	left, err := c.Reserve(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	require.NoError(t, c.Release(ctx, "e1"))
	v, err := c.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	ttl, err := c.TTL(ctx, "e1")
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
