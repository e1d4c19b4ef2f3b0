// Package timers provides pooled timers for hot wait loops.
package timers

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// AcquireTimer from pool. Timer must be returned with ReleaseTimer.
func AcquireTimer(d time.Duration) *time.Timer {
	v := timerPool.Get()
	if v == nil {
		return time.NewTimer(d)
	}
	tm := v.(*time.Timer)
	if tm.Reset(d) {
		// Active timer trapped into the pool, should not happen.
		return time.NewTimer(d)
	}
	return tm
}

// ReleaseTimer stops timer and returns it to pool. Timer must not be used
// after release.
func ReleaseTimer(tm *time.Timer) {
	if !tm.Stop() {
		select {
		case <-tm.C:
		default:
		}
	}
	timerPool.Put(tm)
}
