// ABOUTME: Prometheus counters for the send pipeline
// ABOUTME: Implements conversation.TurnObserver on a private registry

package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/ksasa/internal/conversation"
)

const (
	namespace = "ksasa"
	subsystem = "pipeline"

	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Turns by reply language, domain and outcome
	TurnsTotal *prometheus.CounterVec

	// Raw detector output, before sheng folds into sw
	DetectedTotal *prometheus.CounterVec

	// Agent round trip per domain
	TurnDuration *prometheus.HistogramVec
}

// New registers the pipeline collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "turns_total",
				Help:      "Total number of prompts sent to the Agent Service",
			},
			[]string{"language", "domain", "status"},
		),
		DetectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "detected_language_total",
				Help:      "Detector results by language code",
			},
			[]string{"language"},
		),
		TurnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "turn_duration_seconds",
				Help:      "Send pipeline duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"domain"},
		),
	}
}

// ObserveTurn records one completed turn.
func (m *Metrics) ObserveTurn(turn *conversation.Turn, elapsed time.Duration) {
	if turn == nil {
		return
	}
	status := StatusOK
	if turn.Failed() {
		status = StatusError
	}
	m.TurnsTotal.WithLabelValues(string(turn.Language), string(turn.Domain), status).Inc()
	m.DetectedTotal.WithLabelValues(string(turn.Detected)).Inc()
	m.TurnDuration.WithLabelValues(string(turn.Domain)).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Lines renders counters and histogram counts as sorted "name{labels} value" lines.
func (m *Metrics) Lines() ([]string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering metrics: %w", err)
	}

	var lines []string
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			pairs := make([]string, 0, len(metric.GetLabel()))
			for _, lp := range metric.GetLabel() {
				pairs = append(pairs, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			name := mf.GetName()
			if len(pairs) > 0 {
				name += "{" + strings.Join(pairs, ",") + "}"
			}

			switch {
			case metric.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, metric.GetCounter().GetValue()))
			case metric.GetHistogram() != nil:
				h := metric.GetHistogram()
				lines = append(lines, fmt.Sprintf("%s count=%d sum=%.3fs", name, h.GetSampleCount(), h.GetSampleSum()))
			}
		}
	}
	sort.Strings(lines)
	return lines, nil
}
