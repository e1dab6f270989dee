// Package ratelimit implements the token bucket shared by every worker of a run.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces one global request budget across all workers.
type Limiter struct {
	limiter *rate.Limiter
	observe func(time.Duration)
}

// Config holds rate limiter configuration.
type Config struct {
	// RequestsPerMinute of 0 disables limiting.
	RequestsPerMinute int
	Burst             int
	// Observe receives the time spent waiting for a token, when it is noticeable.
	Observe func(time.Duration)
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		r = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(r, burst),
		observe: cfg.Observe,
	}
}

// Wait blocks until a token is available, respecting the context.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond && l.observe != nil {
		l.observe(d)
	}
	return nil
}

// Limit reports the configured rate in requests per second.
func (l *Limiter) Limit() rate.Limit {
	return l.limiter.Limit()
}
