// Package backoff computes jittered exponential delays between reconnect
// attempts.
package backoff

import (
	"context"
	"math/rand"
	"time"

	"github.com/centrifugal/subclient/internal/timers"
)

const (
	DefaultMinDelay = 100 * time.Millisecond
	DefaultMaxDelay = 20 * time.Second

	maxShift = 30
)

// Backoff keeps retry count of a single retry streak. Zero value uses
// default delays. Not goroutine-safe.
type Backoff struct {
	MinDelay time.Duration
	MaxDelay time.Duration

	retries int
}

func (b *Backoff) bounds() (time.Duration, time.Duration) {
	minDelay, maxDelay := b.MinDelay, b.MaxDelay
	if minDelay <= 0 {
		minDelay = DefaultMinDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return minDelay, maxDelay
}

// Next returns delay before next attempt and increments retry count.
func (b *Backoff) Next() time.Duration {
	minDelay, maxDelay := b.bounds()
	d := nextDuration(minDelay, maxDelay, b.retries)
	b.retries++
	return d
}

// Retries returns number of delays handed out since last Reset.
func (b *Backoff) Retries() int {
	return b.retries
}

// Reset starts new retry streak.
func (b *Backoff) Reset() {
	b.retries = 0
}

// Wait sleeps for Next delay or until ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	tm := timers.AcquireTimer(b.Next())
	defer timers.ReleaseTimer(tm)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tm.C:
		return nil
	}
}

func nextDuration(minDelay, maxDelay time.Duration, retries int) time.Duration {
	if retries >= maxShift {
		return maxDelay
	}
	var jitter time.Duration
	if ms := minDelay.Milliseconds(); ms > 0 {
		//nolint:gosec // it's a jitter.
		jitter = time.Duration(rand.Int63n(ms)) * time.Millisecond
	}
	d := (minDelay + jitter) * (1 << retries)
	if d <= 0 {
		return maxDelay
	}
	return min(d, maxDelay)
}
