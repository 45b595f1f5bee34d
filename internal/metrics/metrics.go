// Package metrics holds the Prometheus collectors for chat turns.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Turns           *prometheus.CounterVec
	TurnDuration    prometheus.Histogram
	CompletionCalls *prometheus.CounterVec
	Searches        *prometheus.CounterVec
	Sessions        prometheus.Gauge
	MemoryAppends   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudx_turns_total",
				Help: "Chat turns by outcome",
			},
			[]string{"outcome"},
		),
		TurnDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cloudx_turn_duration_seconds",
				Help:    "Wall time of a chat turn",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
			},
		),
		CompletionCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudx_completion_calls_total",
				Help: "Completion calls by turn stage and result",
			},
			[]string{"stage", "result"},
		),
		Searches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudx_search_calls_total",
				Help: "Web search provider calls by provider and result",
			},
			[]string{"provider", "result"},
		),
		Sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cloudx_sessions",
				Help: "Sessions currently held in memory",
			},
		),
		MemoryAppends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudx_memory_appends_total",
				Help: "Memory store appends by result",
			},
			[]string{"result"},
		),
	}
	m.registry.MustRegister(m.Turns, m.TurnDuration, m.CompletionCalls, m.Searches, m.Sessions, m.MemoryAppends)
	return m
}

func (m *Metrics) ObserveTurn(outcome string, d time.Duration) {
	m.Turns.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveCompletion(stage string, err error) {
	m.CompletionCalls.WithLabelValues(stage, result(err)).Inc()
}

func (m *Metrics) ObserveSearch(provider string, err error) {
	m.Searches.WithLabelValues(provider, result(err)).Inc()
}

func (m *Metrics) ObserveMemoryAppend(err error) {
	m.MemoryAppends.WithLabelValues(result(err)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
