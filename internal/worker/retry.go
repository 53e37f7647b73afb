package worker

import (
	"context"
	"math"
	"time"
)

// RetryPolicy is an exponential backoff schedule shared by the delivery
// workers. Zero fields take the defaults from withDefaults.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.MaxRetries <= 0 {
		r.MaxRetries = 3
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = time.Minute
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}
	return r
}

// NextDelay is the wait after the given failed attempt (1-based), capped at MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	r = r.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1)))
	if d > r.MaxDelay || d <= 0 {
		d = r.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, MaxRetries attempts are used, or sleep
// reports that ctx ended. onFailure sees every failed attempt. The last
// error is returned.
func (r RetryPolicy) Do(
	ctx context.Context,
	sleep func(ctx context.Context, d time.Duration) bool,
	fn func(attempt int) error,
	onFailure func(attempt int, err error),
) error {
	r = r.withDefaults()
	var err error
	for attempt := 1; attempt <= r.MaxRetries; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if onFailure != nil {
			onFailure(attempt, err)
		}
		if attempt == r.MaxRetries || !sleep(ctx, r.NextDelay(attempt)) {
			break
		}
	}
	return err
}

// sleepCtx waits for d or until ctx is done; it reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
