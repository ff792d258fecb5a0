// Package ratelimit paces outbound submissions so a large batch never
// hammers the collector.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Bucket configures a token bucket. A zero value in either field disables
// limiting.
type Bucket struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

func (b Bucket) Enabled() bool {
	return b.RequestsPerMinute > 0 && b.BurstSize > 0
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter admits or defers an outbound request.
type Limiter interface {
	Allow(ctx context.Context, bucket Bucket) (Decision, error)
}

// TokenBucketLimiter is an in-process token bucket. All submissions in a
// run share one client, so process-local state is the whole picture.
type TokenBucketLimiter struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
	now    func() time.Time
}

func NewTokenBucketLimiter() *TokenBucketLimiter {
	return &TokenBucketLimiter{now: time.Now}
}

// Allow refills the bucket from elapsed wall time and takes one token.
// When empty, the decision carries the wait until the next token accrues.
func (l *TokenBucketLimiter) Allow(_ context.Context, bucket Bucket) (Decision, error) {
	if l == nil || !bucket.Enabled() {
		return Decision{Allowed: true}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ratePerSec := float64(bucket.RequestsPerMinute) / 60.0
	capacity := float64(bucket.BurstSize)
	now := l.now()

	if l.last.IsZero() {
		l.tokens = capacity
		l.last = now
	}
	if now.Before(l.last) {
		l.last = now
	}
	refill := now.Sub(l.last).Seconds() * ratePerSec
	l.tokens = math.Min(capacity, l.tokens+refill)
	l.last = now

	if l.tokens >= 1.0 {
		l.tokens -= 1.0
		return Decision{Allowed: true}, nil
	}

	needed := 1.0 - l.tokens
	wait := time.Duration(math.Ceil(needed/ratePerSec)) * time.Second
	if wait < time.Second {
		wait = time.Second
	}
	return Decision{Allowed: false, RetryAfter: wait}, nil
}

// Wait blocks until the limiter admits a request or the context ends.
func Wait(ctx context.Context, l Limiter, bucket Bucket) error {
	for {
		d, err := l.Allow(ctx, bucket)
		if err != nil {
			return err
		}
		if d.Allowed {
			return nil
		}
		timer := time.NewTimer(d.RetryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
