package ratelimit

import (
	"context"
	"testing"
	"time"
)

func testLimiter(start time.Time) (*TokenBucketLimiter, *time.Time) {
	clock := start
	l := NewTokenBucketLimiter()
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestDisabledBucketAlwaysAllows(t *testing.T) {
	l := NewTokenBucketLimiter()
	for i := 0; i < 100; i++ {
		d, err := l.Allow(context.Background(), Bucket{})
		if err != nil || !d.Allowed {
			t.Fatalf("disabled bucket denied at iteration %d", i)
		}
	}
}

func TestBurstThenDeny(t *testing.T) {
	l, _ := testLimiter(time.Unix(1000, 0))
	bucket := Bucket{RequestsPerMinute: 60, BurstSize: 3}

	for i := 0; i < 3; i++ {
		d, err := l.Allow(context.Background(), bucket)
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed {
			t.Fatalf("burst request %d denied", i)
		}
	}

	d, err := l.Allow(context.Background(), bucket)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("request past the burst must be denied")
	}
	if d.RetryAfter < time.Second {
		t.Errorf("RetryAfter = %v, want >= 1s", d.RetryAfter)
	}
}

func TestRefill(t *testing.T) {
	l, clock := testLimiter(time.Unix(1000, 0))
	bucket := Bucket{RequestsPerMinute: 60, BurstSize: 1}

	if d, _ := l.Allow(context.Background(), bucket); !d.Allowed {
		t.Fatal("first request must pass")
	}
	if d, _ := l.Allow(context.Background(), bucket); d.Allowed {
		t.Fatal("second immediate request must be denied")
	}

	// 60/min = one token per second.
	*clock = clock.Add(time.Second)
	if d, _ := l.Allow(context.Background(), bucket); !d.Allowed {
		t.Fatal("request after refill must pass")
	}
}

func TestRefillCapsAtBurst(t *testing.T) {
	l, clock := testLimiter(time.Unix(1000, 0))
	bucket := Bucket{RequestsPerMinute: 60, BurstSize: 2}

	for i := 0; i < 2; i++ {
		l.Allow(context.Background(), bucket)
	}
	*clock = clock.Add(time.Hour)

	allowed := 0
	for i := 0; i < 5; i++ {
		if d, _ := l.Allow(context.Background(), bucket); d.Allowed {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("allowed %d after long idle, want burst size 2", allowed)
	}
}

func TestWaitContextCancelled(t *testing.T) {
	l, _ := testLimiter(time.Unix(1000, 0))
	bucket := Bucket{RequestsPerMinute: 1, BurstSize: 1}
	l.Allow(context.Background(), bucket)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := Wait(ctx, l, bucket); err == nil {
		t.Fatal("Wait must fail when the context ends before a token accrues")
	}
}
