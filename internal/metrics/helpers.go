package metrics

import (
	"time"
)

// Poll results.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultExpired = "expired"
	ResultCancel  = "canceled"
)

var connectionStates = []string{"disconnected", "connecting", "subscribed", "reconnecting", "disconnecting"}

// ObservePoll records subscribe poll result and duration.
func ObservePoll(started time.Time, result string) {
	PollsTotal.WithLabelValues(result).Inc()
	PollDuration.Observe(time.Since(started).Seconds())
}

// SetConnectionState marks state as the active one.
func SetConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		ConnectionState.WithLabelValues(s).Set(v)
	}
}

// IncEvent counts event dispatched to listeners.
func IncEvent(category string) {
	EventsTotal.WithLabelValues(category).Inc()
}

// IncListenerPanic counts recovered listener panic.
func IncListenerPanic(listener string) {
	ListenerPanicsTotal.WithLabelValues(listener).Inc()
}

// ObservePublish records publish result and duration.
func ObservePublish(started time.Time, result string) {
	PublishesTotal.WithLabelValues(result).Inc()
	PublishDuration.Observe(time.Since(started).Seconds())
}
