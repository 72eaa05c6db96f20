// Package metrics exposes the indexer's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "intentscope"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	PassesTotal       *prometheus.CounterVec
	EventsTotal       *prometheus.CounterVec
	TransfersTotal    *prometheus.CounterVec
	DecodeErrorsTotal *prometheus.CounterVec
	CursorBlock       *prometheus.GaugeVec
	PassDuration      *prometheus.HistogramVec
	PipelineState     *prometheus.GaugeVec
	HTTPRetriesTotal  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		PassesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Indexing passes by chain and outcome",
		}, []string{"chain", "outcome"}),
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "New normalized events committed",
		}, []string{"chain"}),
		TransfersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "New token transfers committed",
		}, []string{"chain"}),
		DecodeErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Logs or records skipped because they could not be decoded",
		}, []string{"chain"}),
		CursorBlock: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cursor_block",
			Help:      "Last committed block per chain",
		}, []string{"chain"}),
		PassDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Wall time of one indexing pass",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"chain"}),
		PipelineState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_state",
			Help:      "Current pipeline state per chain (0 idle .. 6 error)",
		}, []string{"chain"}),
		HTTPRetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_retries_total",
			Help:      "Retried upstream HTTP requests by host",
		}, []string{"host"}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func chainLabel(chainID uint64) string {
	return strconv.FormatUint(chainID, 10)
}

// ObservePass records a finished pass.
func (m *Metrics) ObservePass(chainID uint64, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := chainLabel(chainID)
	m.PassesTotal.WithLabelValues(label, outcome).Inc()
	m.PassDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

// AddCommitted records the new rows of a committed pass.
func (m *Metrics) AddCommitted(chainID uint64, events, transfers int) {
	if m == nil {
		return
	}
	label := chainLabel(chainID)
	m.EventsTotal.WithLabelValues(label).Add(float64(events))
	m.TransfersTotal.WithLabelValues(label).Add(float64(transfers))
}

func (m *Metrics) AddDecodeErrors(chainID uint64, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DecodeErrorsTotal.WithLabelValues(chainLabel(chainID)).Add(float64(n))
}

func (m *Metrics) SetCursor(chainID, block uint64) {
	if m == nil {
		return
	}
	m.CursorBlock.WithLabelValues(chainLabel(chainID)).Set(float64(block))
}

func (m *Metrics) SetState(chainID uint64, state int) {
	if m == nil {
		return
	}
	m.PipelineState.WithLabelValues(chainLabel(chainID)).Set(float64(state))
}

func (m *Metrics) IncRetry(host string) {
	if m == nil {
		return
	}
	m.HTTPRetriesTotal.WithLabelValues(host).Inc()
}
