// Package metrics exposes client activity as Prometheus collectors.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jowharshamshiri/GoZaparoo/pkg/core"
	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
)

// Config configures the collectors
type Config struct {
	// Namespace is the metrics namespace (default: "zaparoo").
	Namespace string

	// Subsystem is the metrics subsystem (default: "client").
	Subsystem string

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// Buckets are the call duration histogram buckets.
	Buckets []float64

	// Registry is where collectors are registered.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// DefaultConfig returns the default metrics configuration
func DefaultConfig() Config {
	return Config{
		Namespace: "zaparoo",
		Subsystem: "client",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector records call, frame and connection metrics. It implements
// api.Observer.
type Collector struct {
	config Config

	callsSubmitted *prometheus.CounterVec
	callsSettled   *prometheus.CounterVec
	callDuration   *prometheus.HistogramVec
	framesDropped  *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	state          *prometheus.GaugeVec
	transitions    *prometheus.CounterVec
	reconnects     prometheus.Counter

	stateMu sync.Mutex
}

// New creates and registers the collectors
func New(config ...Config) *Collector {
	cfg := DefaultConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = DefaultConfig().Buckets
	}

	factory := promauto.With(cfg.Registry)
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.ConstLabels,
		}
	}

	return &Collector{
		config: cfg,
		callsSubmitted: factory.NewCounterVec(
			opts("calls_submitted_total", "Calls submitted, by method and route (sent or queued)"),
			[]string{"method", "route"}),
		callsSettled: factory.NewCounterVec(
			opts("calls_settled_total", "Calls settled, by method and outcome"),
			[]string{"method", "status"}),
		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "call_duration_seconds",
			Help:        "Time from submission to settlement",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"method"}),
		framesDropped: factory.NewCounterVec(
			opts("frames_dropped_total", "Inbound frames dropped, by reason"),
			[]string{"reason"}),
		notifications: factory.NewCounterVec(
			opts("notifications_total", "Device notifications received, by method"),
			[]string{"method"}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "connection_state",
			Help:        "1 for the current connection state, 0 otherwise",
			ConstLabels: cfg.ConstLabels,
		}, []string{"state"}),
		transitions: factory.NewCounterVec(
			opts("connection_transitions_total", "Connection state transitions, by target state"),
			[]string{"state"}),
		reconnects: factory.NewCounter(
			opts("reconnects_total", "Connections re-established after a drop")),
	}
}

func (c *Collector) CallSubmitted(method string, queued bool) {
	route := "sent"
	if queued {
		route = "queued"
	}
	c.callsSubmitted.WithLabelValues(method, route).Inc()
}

func (c *Collector) CallSettled(method string, status models.CallStatus, elapsed time.Duration) {
	c.callsSettled.WithLabelValues(method, status.String()).Inc()
	c.callDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (c *Collector) FrameDropped(reason string) {
	c.framesDropped.WithLabelValues(reason).Inc()
}

func (c *Collector) NotificationReceived(method string) {
	c.notifications.WithLabelValues(method).Inc()
}

var connectionStates = []core.ConnectionState{
	core.StateIdle,
	core.StateConnecting,
	core.StateConnected,
	core.StateReconnecting,
	core.StateDisconnected,
	core.StateError,
}

// StateSource reports the current connection state
type StateSource interface {
	State() core.ConnectionState
}

// observeTransition counts the transition to `to`. The state gauge mirrors
// src.State() at call time; listeners may be delivered out of order.
func (c *Collector) observeTransition(src StateSource, to core.ConnectionState) {
	c.transitions.WithLabelValues(to.String()).Inc()

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	current := src.State()
	for _, s := range connectionStates {
		v := 0.0
		if s == current {
			v = 1
		}
		c.state.WithLabelValues(s.String()).Set(v)
	}
}

// QueueSource reports queue depths for gauge collection
type QueueSource interface {
	PendingCount() int
	QueuedCount() int
}

// TrackQueues registers gauges that read pending and queued call counts from
// src at scrape time
func (c *Collector) TrackQueues(src QueueSource) {
	factory := promauto.With(c.config.Registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   c.config.Namespace,
		Subsystem:   c.config.Subsystem,
		Name:        "pending_calls",
		Help:        "Calls sent and awaiting a response",
		ConstLabels: c.config.ConstLabels,
	}, func() float64 { return float64(src.PendingCount()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   c.config.Namespace,
		Subsystem:   c.config.Subsystem,
		Name:        "queued_calls",
		Help:        "Calls waiting for a connection",
		ConstLabels: c.config.ConstLabels,
	}, func() float64 { return float64(src.QueuedCount()) })
}

// TrackConnection subscribes to m's state changes
func (c *Collector) TrackConnection(m *core.ConnectionManager) {
	c.stateMu.Lock()
	c.state.WithLabelValues(m.State().String()).Set(1)
	c.stateMu.Unlock()

	var mu sync.Mutex
	last := m.Reconnects()
	m.OnStateChange(func(_, to core.ConnectionState) {
		c.observeTransition(m, to)
		if to != core.StateConnected {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if n := m.Reconnects(); n > last {
			c.reconnects.Add(float64(n - last))
			last = n
		}
	})
}
