package redis

import (
	"bytes"
	"context"
	"testing"
	"time"

	"ms-booking/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_Healthy(t *testing.T) {
	mr := miniredis.RunT(t)
	var buf bytes.Buffer

	client, err := Connect(context.Background(), mr.Addr(), "", 0, logger.NewLoggerWithWriter(&buf))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Contains(t, buf.String(), "Redis connection successful")
}

func TestConnect_RecoversAfterBootOutage(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	mr.Close()

	var buf bytes.Buffer
	client, err := Connect(context.Background(), mr.Addr(), "", 0, logger.NewLoggerWithWriter(&buf))
	require.Error(t, err)
	require.NotNil(t, client, "client must survive a failed ping")
	t.Cleanup(func() { _ = client.Close() })

	c := NewCounter(client)
	ctx := context.Background()
	_, err = c.Get(ctx, "e1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)

	require.NoError(t, mr.Restart())

	require.Eventually(t, func() bool {
		return c.Populate(ctx, "e1", 3, time.Minute) == nil
	}, 5*time.Second, 50*time.Millisecond)

	v, err := c.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}
