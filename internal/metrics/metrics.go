package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultMetricsNamespace = "subclient"

// Config contains metrics configuration.
type Config struct {
	// Namespace is the prometheus namespace for all metrics. If empty, defaults to "subclient".
	Namespace string
	// ConstLabels are added to all metrics as constant labels.
	ConstLabels map[string]string
	// Registerer is the prometheus registerer to use. If nil, prometheus.DefaultRegisterer is used.
	Registerer prometheus.Registerer
}

// Registry holds all client metrics.
type Registry struct {
	config Config

	// Connection metrics
	pollsTotal         *prometheus.CounterVec
	pollDuration       prometheus.Histogram
	reconnectsTotal    prometheus.Counter
	catchUpResetsTotal prometheus.Counter
	connectionState    *prometheus.GaugeVec
	subscribedEntities prometheus.Gauge

	// Notification metrics
	eventsTotal         *prometheus.CounterVec
	listenerPanicsTotal *prometheus.CounterVec

	// Outbound metrics
	publishesTotal   *prometheus.CounterVec
	publishDuration  prometheus.Histogram
	outboundQueueLen prometheus.Gauge
}

// Init initializes the metrics registry with the provided configuration.
// It creates all metrics and registers them with the provided registerer.
// Until Init is called package collectors are unregistered and only
// accumulate values in memory.
func Init(cfg Config) error {
	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	reg.assign()
	return nil
}

func (r *Registry) assign() {
	PollsTotal = r.pollsTotal
	PollDuration = r.pollDuration
	ReconnectsTotal = r.reconnectsTotal
	CatchUpResetsTotal = r.catchUpResetsTotal
	ConnectionState = r.connectionState
	SubscribedEntities = r.subscribedEntities

	EventsTotal = r.eventsTotal
	ListenerPanicsTotal = r.listenerPanicsTotal

	PublishesTotal = r.publishesTotal
	PublishDuration = r.publishDuration
	OutboundQueueLen = r.outboundQueueLen
}

func newCollectors(cfg Config) *Registry {
	metricsNamespace := cfg.Namespace
	if metricsNamespace == "" {
		metricsNamespace = defaultMetricsNamespace
	}

	constLabels := prometheus.Labels(cfg.ConstLabels)

	m := &Registry{
		config: cfg,
	}

	// Connection metrics
	m.pollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "connection",
		Name:        "polls_total",
		Help:        "Number of subscribe polls by result.",
		ConstLabels: constLabels,
	}, []string{"result"})

	m.pollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "connection",
		Name:        "poll_duration_seconds",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60, 120, 300},
		Help:        "Duration of subscribe polls.",
		ConstLabels: constLabels,
	})

	m.reconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "connection",
		Name:        "reconnects_total",
		Help:        "Number of transitions into reconnecting state.",
		ConstLabels: constLabels,
	})

	m.catchUpResetsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "connection",
		Name:        "catch_up_resets_total",
		Help:        "Number of times the catch-up cursor was discarded.",
		ConstLabels: constLabels,
	})

	m.connectionState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "connection",
		Name:        "state",
		Help:        "Current connection state, 1 for the active one.",
		ConstLabels: constLabels,
	}, []string{"state"})

	m.subscribedEntities = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "connection",
		Name:        "subscribed_entities",
		Help:        "Number of entities in membership.",
		ConstLabels: constLabels,
	})

	// Notification metrics
	m.eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "notification",
		Name:        "events_total",
		Help:        "Number of dispatched events by category.",
		ConstLabels: constLabels,
	}, []string{"category"})

	m.listenerPanicsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "notification",
		Name:        "listener_panics_total",
		Help:        "Number of recovered listener panics.",
		ConstLabels: constLabels,
	}, []string{"listener"})

	// Outbound metrics
	m.publishesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "outbound",
		Name:        "publishes_total",
		Help:        "Number of publish attempts by result.",
		ConstLabels: constLabels,
	}, []string{"result"})

	m.publishDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "outbound",
		Name:        "publish_duration_seconds",
		Buckets:     prometheus.DefBuckets,
		Help:        "Duration of publish requests.",
		ConstLabels: constLabels,
	})

	m.outboundQueueLen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "outbound",
		Name:        "queue_size",
		Help:        "Number of messages waiting in outbound queue.",
		ConstLabels: constLabels,
	})

	return m
}

func (r *Registry) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.pollsTotal,
		r.pollDuration,
		r.reconnectsTotal,
		r.catchUpResetsTotal,
		r.connectionState,
		r.subscribedEntities,
		r.eventsTotal,
		r.listenerPanicsTotal,
		r.publishesTotal,
		r.publishDuration,
		r.outboundQueueLen,
	}
}

func newRegistry(cfg Config) (*Registry, error) {
	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := newCollectors(cfg)

	var alreadyRegistered prometheus.AlreadyRegisteredError
	for _, collector := range m.collectors() {
		err := registerer.Register(collector)
		if err != nil {
			// Ignore if already registered (allows re-initialization in tests)
			if !errors.As(err, &alreadyRegistered) {
				return nil, err
			}
		}
	}

	return m, nil
}
