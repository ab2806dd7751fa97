package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clk := &fakeClock{t: time.Unix(1_700_000_040, 0)}
	l := NewRedisLimiter(client, "test:", 2, time.Minute)
	l.now = clk.Now
	ctx := context.Background()

	r1, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, r1.Allowed)
	assert.Equal(t, int64(1), r1.Remaining)

	_, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)

	r3, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, r3.Allowed)
	assert.Greater(t, r3.RetryAfter, time.Duration(0))

	other, err := l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	// ventana siguiente: contador nuevo
	clk.Advance(time.Minute)
	r4, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, r4.Allowed)
}

func TestRedisLimiter_BackendDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisLimiter(client, "", 1, time.Minute).Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_040, 0)} // inicio exacto de ventana
	l := NewMemoryLimiter(3, time.Minute)
	l.now = clk.Now
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r, err := l.Allow(ctx, "ip")
		require.NoError(t, err)
		assert.True(t, r.Allowed, "hit %d", i+1)
	}
	r, err := l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Equal(t, int64(4), r.CurrentHits)
	assert.Equal(t, time.Minute, r.RetryAfter)

	clk.Advance(time.Minute)
	r, err = l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, r.Allowed)
}
