// Package ratelimit throttles outgoing Discord API calls per route and
// incoming dashboard requests per client IP.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Bucket is the rate limit state of one Discord API route
type Bucket struct {
	Remaining int           // Requests remaining in current window
	Limit     int           // Total requests allowed per window
	ResetAt   time.Time     // When the rate limit resets
	limiter   *rate.Limiter // Token bucket smoothing requests inside the window
	mu        sync.Mutex
}

// RouteLimiter tracks Discord's per-route buckets from response headers
type RouteLimiter struct {
	buckets map[string]*Bucket // route -> bucket
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewRouteLimiter creates a new Discord route limiter
func NewRouteLimiter(logger *zap.Logger) *RouteLimiter {
	return &RouteLimiter{
		buckets: make(map[string]*Bucket),
		logger:  logger,
	}
}

func (rl *RouteLimiter) getBucket(route string) *Bucket {
	rl.mu.RLock()
	bucket, exists := rl.buckets[route]
	rl.mu.RUnlock()
	if exists {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if bucket, exists := rl.buckets[route]; exists {
		return bucket
	}

	// Discord's global limit is 50 req/s; start conservatively until headers arrive
	bucket = &Bucket{
		Remaining: 5,
		Limit:     5,
		ResetAt:   time.Now().Add(1 * time.Second),
		limiter:   rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}

	rl.buckets[route] = bucket
	return bucket
}

// Wait blocks until a request on route may be sent or ctx is done
func (rl *RouteLimiter) Wait(ctx context.Context, route string) error {
	bucket := rl.getBucket(route)

	bucket.mu.Lock()
	exhausted := bucket.Remaining <= 0 && time.Now().Before(bucket.ResetAt)
	waitDuration := time.Until(bucket.ResetAt)
	limiter := bucket.limiter
	bucket.mu.Unlock()

	if exhausted {
		rl.logger.Warn("discord rate limit exhausted, waiting",
			zap.String("route", route),
			zap.Duration("wait_duration", waitDuration),
		)

		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit wait cancelled: %w", ctx.Err())
		}
	}

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	return nil
}

// UpdateFromHeaders updates the route's bucket from Discord's X-RateLimit-* headers
func (rl *RouteLimiter) UpdateFromHeaders(route string, headers http.Header) {
	bucket := rl.getBucket(route)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	if val, err := strconv.Atoi(headers.Get("X-RateLimit-Remaining")); err == nil {
		bucket.Remaining = val
	}

	if val, err := strconv.Atoi(headers.Get("X-RateLimit-Limit")); err == nil {
		bucket.Limit = val
	}

	// Reset-After is relative and immune to clock skew, so it wins over Reset
	if resetAfter, ok := parseSeconds(headers.Get("X-RateLimit-Reset-After")); ok {
		bucket.ResetAt = time.Now().Add(resetAfter)
	} else if reset := headers.Get("X-RateLimit-Reset"); reset != "" {
		if secs, err := strconv.ParseFloat(reset, 64); err == nil {
			bucket.ResetAt = time.Unix(0, int64(secs*float64(time.Second)))
		}
	}

	if bucket.Limit > 0 {
		if resetDuration := time.Until(bucket.ResetAt); resetDuration > 0 {
			tokensPerSecond := float64(bucket.Limit) / resetDuration.Seconds()
			bucket.limiter = rate.NewLimiter(rate.Limit(tokensPerSecond), bucket.Limit)
		}
	}

	rl.logger.Debug("updated discord rate limit from headers",
		zap.String("route", route),
		zap.Int("remaining", bucket.Remaining),
		zap.Int("limit", bucket.Limit),
		zap.Time("reset_at", bucket.ResetAt),
	)
}

// HandleRateLimitResponse records a 429 response and returns how long to back off
func (rl *RouteLimiter) HandleRateLimitResponse(route string, headers http.Header) time.Duration {
	bucket := rl.getBucket(route)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	retryAfter, ok := parseSeconds(headers.Get("Retry-After"))
	if !ok {
		retryAfter, _ = parseSeconds(headers.Get("X-RateLimit-Reset-After"))
	}
	if retryAfter <= 0 {
		retryAfter = 1 * time.Second
	}

	bucket.Remaining = 0
	bucket.ResetAt = time.Now().Add(retryAfter)

	rl.logger.Warn("rate limited by Discord API",
		zap.String("route", route),
		zap.Duration("retry_after", retryAfter),
		zap.Bool("global", headers.Get("X-RateLimit-Global") == "true"),
	)

	return retryAfter
}

// GetStatus returns the current rate limit status for a route
func (rl *RouteLimiter) GetStatus(route string) (remaining int, limit int, resetAt time.Time) {
	bucket := rl.getBucket(route)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	return bucket.Remaining, bucket.Limit, bucket.ResetAt
}

// parseSeconds parses a possibly fractional number of seconds
func parseSeconds(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}
