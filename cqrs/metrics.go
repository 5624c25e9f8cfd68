package cqrs

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tessera-id/portal/eventstore"
)

// Metric label names.
const (
	labelCommandType = "command_type"
	labelEventType   = "event_type"
	labelStatus      = "status"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds the Prometheus collectors for the command and projection
// pipeline.
type Metrics struct {
	namespace string

	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	commandsInFlight prometheus.Gauge
	eventsProjected  *prometheus.CounterVec
}

// MetricsOption configures Metrics.
type MetricsOption func(*Metrics)

// WithNamespace sets the Prometheus namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(m *Metrics) {
		m.namespace = namespace
	}
}

// NewMetrics creates the collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	m := &Metrics{namespace: "portal"}
	for _, opt := range opts {
		opt(m)
	}

	m.commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "commands_total",
			Help:      "Total number of commands processed.",
		},
		[]string{labelCommandType, labelStatus},
	)
	m.commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of command processing in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{labelCommandType},
	)
	m.commandsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      "commands_in_flight",
			Help:      "Number of commands currently being processed.",
		},
	)
	m.eventsProjected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "events_projected_total",
			Help:      "Total number of events delivered to projections.",
		},
		[]string{labelEventType},
	)
	return m
}

// Collectors returns all collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.commandsTotal,
		m.commandDuration,
		m.commandsInFlight,
		m.eventsProjected,
	}
}

// Register registers the collectors with a registerer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// CommandMiddleware records command counts, durations, and in-flight gauge.
func (m *Metrics) CommandMiddleware() Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			m.commandsInFlight.Inc()
			start := time.Now()

			result, err := next(ctx, cmd)

			m.commandsInFlight.Dec()
			m.commandDuration.WithLabelValues(cmd.CommandType()).Observe(time.Since(start).Seconds())

			status := statusSuccess
			if err != nil || result.IsError() {
				status = statusError
			}
			m.commandsTotal.WithLabelValues(cmd.CommandType(), status).Inc()
			return result, err
		}
	}
}

// ObserveEvent implements eventstore.Observer, counting projected events.
func (m *Metrics) ObserveEvent(ctx context.Context, event eventstore.Event) {
	m.eventsProjected.WithLabelValues(event.Type).Inc()
}
