package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	newCollectors(Config{}).assign()
}

// Connection metrics - exported for use by client package
var (
	PollsTotal         *prometheus.CounterVec
	PollDuration       prometheus.Histogram
	ReconnectsTotal    prometheus.Counter
	CatchUpResetsTotal prometheus.Counter
	ConnectionState    *prometheus.GaugeVec
	SubscribedEntities prometheus.Gauge
)

// Notification metrics - exported for use by fanout package
var (
	EventsTotal         *prometheus.CounterVec
	ListenerPanicsTotal *prometheus.CounterVec
)

// Outbound metrics - exported for use by outbound package
var (
	PublishesTotal   *prometheus.CounterVec
	PublishDuration  prometheus.Histogram
	OutboundQueueLen prometheus.Gauge
)
