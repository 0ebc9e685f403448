// Package retry wraps single network calls against the draft store
// with bounded retries and exponential backoff. Only transient
// failures are retried; anything else fails fast.
package retry

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// Attempt ceilings agreed with the draft store: reads are cheap to
// repeat, saves carry user input, deletes are best-effort cleanup.
const (
	FetchAttempts  = 5
	UpsertAttempts = 5
	DeleteAttempts = 3
)

const (
	baseDelay = time.Second
	maxDelay  = 10 * time.Second
	maxJitter = time.Second
)

// transientMarkers is the classification contract: an error whose text
// contains any of these is worth retrying unchanged. Matching is
// case-sensitive on purpose, the transport spells these in lowercase.
var transientMarkers = []string{
	"network",
	"connection",
	"timeout",
	"fetch failed",
	"aborted",
}

func Transient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Delay computes the backoff before retry number attempt (1-based):
// 1000*2^attempt ms plus up to 1s of jitter, capped at 10s. The jitter
// spreads clients reconnecting after a shared outage.
func Delay(attempt int) time.Duration {
	d := baseDelay << attempt
	if d > maxDelay || d <= 0 {
		return maxDelay
	}
	d += time.Duration(rand.Int63n(int64(maxJitter)))
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// wait is a variable so tests can skip real sleeps.
var wait = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs op up to attempts times. The first success wins. A permanent
// failure is returned immediately; exhausting every attempt returns
// the last transient error seen.
func Do[T any](ctx context.Context, attempts int, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var last error
	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !Transient(err) {
			return zero, err
		}
		last = err
		if attempt >= attempts {
			return zero, last
		}
		if err := wait(ctx, Delay(attempt)); err != nil {
			return zero, err
		}
	}
}

// Run is Do for operations with no result.
func Run(ctx context.Context, attempts int, op func(context.Context) error) error {
	_, err := Do(ctx, attempts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
