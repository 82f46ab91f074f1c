package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "greenhouse"

// Metrics owns its registry so tests can build as many as they like. All
// Observe methods are no-ops on a nil *Metrics.
type Metrics struct {
	Registry *prometheus.Registry

	// Device ids come from unauthenticated callers, so the relay counters
	// carry no device label.
	ReadingsIngested prometheus.Counter
	CommandsSet      prometheus.Counter
	CommandPolls     prometheus.Counter
	AuthFailures     *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ReadingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_ingested_total",
			Help:      "Readings appended to the readings log.",
		}),
		CommandsSet: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_set_total",
			Help:      "Command upserts.",
		}),
		CommandPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_polls_total",
			Help:      "Command reads, normally device polls.",
		}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Write requests rejected for a wrong or missing api key.",
		}, []string{"transport", "route"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency by transport, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport", "route", "status"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ReadingsIngested,
		m.CommandsSet,
		m.CommandPolls,
		m.AuthFailures,
		m.RequestDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) ObserveReading() {
	if m == nil {
		return
	}
	m.ReadingsIngested.Inc()
}

func (m *Metrics) ObserveCommandSet() {
	if m == nil {
		return
	}
	m.CommandsSet.Inc()
}

func (m *Metrics) ObserveCommandPoll() {
	if m == nil {
		return
	}
	m.CommandPolls.Inc()
}

func (m *Metrics) ObserveAuthFailure(transport, route string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(transport, route).Inc()
}

func (m *Metrics) ObserveRequest(transport, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(transport, route, status).Observe(elapsed.Seconds())
}
