// Package metrics exports the dispatcher's activity as Prometheus
// collectors. Every Metrics owns its registry so several dispatchers, or
// tests running in parallel, never share counters.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agbru/hiersurr/internal/parallel"
	"github.com/agbru/hiersurr/internal/rekey"
	"github.com/agbru/hiersurr/internal/response"
)

const namespace = "hiersurr"

// Metrics implements dispatch.Recorder and records coordinator transitions.
type Metrics struct {
	registry    *prometheus.Registry
	evaluations *prometheus.CounterVec
	responses   *prometheus.CounterVec
	builds      prometheus.Counter
	corrections prometheus.Counter
	pending     *prometheus.GaugeVec
	cached      *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	handler     http.Handler
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Sub-model evaluations started, by response mode, fidelity slot and launch kind.",
		}, []string{"mode", "slot", "async"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Combined responses returned to callers, by response mode.",
		}, []string{"mode"}),
		builds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approximation_builds_total",
			Help:      "Truth evaluations run to anchor a correction.",
		}),
		corrections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_applied_total",
			Help:      "Correction pairs applied to surrogate responses.",
		}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_evaluations",
			Help:      "Launched evaluations not yet completed, by fidelity slot.",
		}, []string{"slot"}),
		cached: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_responses",
			Help:      "Completed evaluations held until their partner arrives, by fidelity slot.",
		}, []string{"slot"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_transitions_total",
			Help:      "Parallel mode transitions announced to workers.",
		}, []string{"from", "to"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.evaluations, m.responses, m.builds, m.corrections, m.pending, m.cached, m.transitions,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler { return m.handler }

// WritePrometheus writes the current metrics to w.
func (m *Metrics) WritePrometheus(w http.ResponseWriter, r *http.Request) {
	m.handler.ServeHTTP(w, r)
}

func (m *Metrics) EvaluationStarted(mode response.Mode, slot rekey.Slot, async bool) {
	m.evaluations.WithLabelValues(mode.String(), slot.String(), strconv.FormatBool(async)).Inc()
}

func (m *Metrics) ApproximationBuilt() { m.builds.Inc() }

func (m *Metrics) CorrectionsApplied(n int) { m.corrections.Add(float64(n)) }

func (m *Metrics) ResponsesEmitted(mode response.Mode, n int) {
	m.responses.WithLabelValues(mode.String()).Add(float64(n))
}

func (m *Metrics) Backlog(slot rekey.Slot, pending, cached int) {
	m.pending.WithLabelValues(slot.String()).Set(float64(pending))
	m.cached.WithLabelValues(slot.String()).Set(float64(cached))
}

// Transition counts a coordinator transition. Pass it to
// parallel.WithTransitionHook.
func (m *Metrics) Transition(from, to parallel.State) {
	m.transitions.WithLabelValues(from.String(), to.String()).Inc()
}
