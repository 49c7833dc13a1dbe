package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Decision is the outcome of one client request against its budget
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// IPLimiter enforces a fixed request budget per client key
type IPLimiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// MemoryLimiter is a process-local IPLimiter backed by token buckets.
// The budget refills evenly over the window.
type MemoryLimiter struct {
	limit    int
	window   time.Duration
	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter creates an in-memory limiter allowing limit requests per window
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:    limit,
		window:   window,
		visitors: make(map[string]*visitor),
	}
}

// Allow consumes one request from key's budget
func (ml *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	ml.mu.Lock()
	v, ok := ml.visitors[key]
	if !ok {
		v = &visitor{
			limiter: rate.NewLimiter(rate.Every(ml.window/time.Duration(ml.limit)), ml.limit),
		}
		ml.visitors[key] = v
	}
	v.lastSeen = time.Now()
	ml.mu.Unlock()

	now := time.Now()
	reservation := v.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return Decision{Allowed: false, Limit: ml.limit, Remaining: 0, ResetAfter: delay}, nil
	}

	remaining := int(v.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Limit: ml.limit, Remaining: remaining, ResetAfter: ml.window}, nil
}

// Sweep forgets clients idle for longer than one window
func (ml *MemoryLimiter) Sweep() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	removed := 0
	for key, v := range ml.visitors {
		if time.Since(v.lastSeen) > ml.window {
			delete(ml.visitors, key)
			removed++
		}
	}
	return removed
}

// StartSweeper periodically removes idle clients until ctx is done
func (ml *MemoryLimiter) StartSweeper(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := ml.Sweep(); removed > 0 {
					logger.Debug("swept idle rate limit entries", zap.Int("removed", removed))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// fixedWindowScript increments the window counter, starting its expiry on the first hit
var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {count, redis.call('PTTL', KEYS[1])}
`)

// RedisLimiter is a fixed-window IPLimiter shared by every replica using the same Redis
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisLimiter creates a Redis backed limiter allowing limit requests per window
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "guilddesk:ratelimit:",
	}
}

// Allow consumes one request from key's budget in the current window
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := fixedWindowScript.Run(ctx, rl.client, []string{rl.prefix + key}, rl.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("unexpected rate limit script result: %v", res)
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	if ttl < 0 {
		ttl = rl.window
	}

	remaining := rl.limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:    count <= rl.limit,
		Limit:      rl.limit,
		Remaining:  remaining,
		ResetAfter: ttl,
	}, nil
}
