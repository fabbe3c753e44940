// Package metrics exposes Prometheus counters for certificate extraction and
// entry activity on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Extraction outcomes.
const (
	OutcomeAccepted    = "accepted"
	OutcomeRejected    = "rejected"
	OutcomeDecodeError = "decode_error"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom buckets for the extraction duration histogram.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// WithRegistry sets a custom Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// Manager owns the registry and collectors. A nil *Manager is valid and
// records nothing.
type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	extractions  *prometheus.CounterVec
	extractTime  prometheus.Histogram
	entriesAdded *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
}

// New creates a Manager and registers its collectors.
func New(opts ...Option) *Manager {
	m := &Manager{
		namespace: "cpetrack",
		buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}

	auto := promauto.With(m.registry)
	m.extractions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "extractions_total",
		Help:      "Certificate extractions by outcome.",
	}, []string{"outcome", "policy"})
	m.extractTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "extraction_duration_seconds",
		Help:      "Time spent decoding and extracting a certificate.",
		Buckets:   m.buckets,
	})
	m.entriesAdded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "entries_added_total",
		Help:      "Entries stored, by source.",
	}, []string{"source"})
	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "http_requests_total",
		Help:      "Web requests by route and status code.",
	}, []string{"route", "code"})

	return m
}

// RecordExtraction counts one extraction attempt and its duration.
func (m *Manager) RecordExtraction(outcome, policy string, d time.Duration) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(outcome, policy).Inc()
	m.extractTime.Observe(d.Seconds())
}

// RecordEntryAdded counts a stored entry.
func (m *Manager) RecordEntryAdded(source string) {
	if m == nil {
		return
	}
	m.entriesAdded.WithLabelValues(source).Inc()
}

// RecordHTTPRequest counts a served web request.
func (m *Manager) RecordHTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
