package timers

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fired(tm *time.Timer, within time.Duration) bool {
	select {
	case <-tm.C:
		return true
	case <-time.After(within):
		return false
	}
}

func TestAcquireFiresAfterDuration(t *testing.T) {
	tm := AcquireTimer(30 * time.Millisecond)
	require.False(t, fired(tm, 5*time.Millisecond))
	require.True(t, fired(tm, time.Second))
	ReleaseTimer(tm)
}

func TestReleasedTimerReused(t *testing.T) {
	// Released before firing, channel must stay empty for the next user.
	tm := AcquireTimer(time.Hour)
	ReleaseTimer(tm)
	tm = AcquireTimer(10 * time.Millisecond)
	require.True(t, fired(tm, time.Second))
	ReleaseTimer(tm)

	// Released after firing without draining.
	tm = AcquireTimer(time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	ReleaseTimer(tm)
	tm = AcquireTimer(50 * time.Millisecond)
	require.False(t, fired(tm, 10*time.Millisecond))
	ReleaseTimer(tm)
}

func TestConcurrentSleeps(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm := AcquireTimer(5 * time.Millisecond)
			defer ReleaseTimer(tm)
			<-tm.C
		}()
	}
	wg.Wait()
}
