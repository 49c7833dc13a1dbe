package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

func TestMemoryLimiter_AllowsBudgetThenBlocks(t *testing.T) {
	ctx := context.Background()
	limiter := NewMemoryLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		d, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 3, d.Limit)
	}

	d, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Greater(t, d.ResetAfter, time.Duration(0))

	// Other clients have their own budget
	d, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryLimiter_RemainingDecreases(t *testing.T) {
	ctx := context.Background()
	limiter := NewMemoryLimiter(100, 15*time.Minute)

	first, err := limiter.Allow(ctx, "ip")
	require.NoError(t, err)
	second, err := limiter.Allow(ctx, "ip")
	require.NoError(t, err)

	assert.Equal(t, 99, first.Remaining)
	assert.Equal(t, 98, second.Remaining)
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	ctx := context.Background()
	limiter := NewMemoryLimiter(10, 10*time.Millisecond)

	_, err := limiter.Allow(ctx, "idle")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = limiter.Allow(ctx, "active")
	require.NoError(t, err)

	assert.Equal(t, 1, limiter.Sweep())
	assert.Len(t, limiter.visitors, 1)
}

func TestMemoryLimiter_StartSweeper(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := NewMemoryLimiter(10, 10*time.Millisecond)
	_, err := limiter.Allow(ctx, "idle")
	require.NoError(t, err)

	limiter.StartSweeper(ctx, 10*time.Millisecond, zap.NewNop())

	assert.Eventually(t, func() bool {
		limiter.mu.Lock()
		defer limiter.mu.Unlock()
		return len(limiter.visitors) == 0
	}, time.Second, 10*time.Millisecond)
}

func setupRedis(ctx context.Context, t *testing.T) *redis.Client {
	t.Helper()

	container, err := tcredis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	client := setupRedis(ctx, t)

	limiter := NewRedisLimiter(client, 2, 500*time.Millisecond)

	first, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)
	assert.LessOrEqual(t, first.ResetAfter, 500*time.Millisecond)

	second, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)

	third, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, third.Allowed)

	other, err := limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	// New window after expiry
	assert.Eventually(t, func() bool {
		d, err := limiter.Allow(ctx, "10.0.0.1")
		return err == nil && d.Allowed
	}, 3*time.Second, 100*time.Millisecond)
}

func TestRedisLimiter_SharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	client := setupRedis(ctx, t)

	a := NewRedisLimiter(client, 1, time.Minute)
	b := NewRedisLimiter(client, 1, time.Minute)

	d, err := a.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = b.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestRedisLimiter_ClosedClient(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	_ = client.Close()

	_, err := NewRedisLimiter(client, 1, time.Minute).Allow(context.Background(), "ip")
	assert.Error(t, err)
}
