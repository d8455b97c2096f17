// Package metrics exposes Prometheus collectors for the training session.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "phishcoach"

// Metrics holds Prometheus metrics for the language model, the generation
// pipeline and trainee judgments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	LLMQueries        *prometheus.CounterVec // by result: ok, error
	LLMLatency        prometheus.Histogram
	ContextResets     prometheus.Counter
	GeneratedMessages prometheus.Counter
	GenerationSkips   *prometheus.CounterVec // by reason: parse
	Judgments         *prometheus.CounterVec // by outcome
	InteractionState  *prometheus.GaugeVec   // 1 for the current state, 0 otherwise
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LLMQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_queries_total",
			Help:      "Language model queries by result",
		}, []string{"result"}),
		LLMLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_query_duration_seconds",
			Help:      "Language model query latency",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
		ContextResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_context_resets_total",
			Help:      "Conversational context resets",
		}),
		GeneratedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generated_messages_total",
			Help:      "Messages produced by the generation pipeline",
		}),
		GenerationSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_skips_total",
			Help:      "Sample slots skipped during generation by reason",
		}, []string{"reason"}),
		Judgments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "judgments_total",
			Help:      "Trainee flag decisions by outcome",
		}, []string{"outcome"}),
		InteractionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "interaction_state",
			Help:      "Current interaction state (1 = active)",
		}, []string{"state"}),
	}

	reg.MustRegister(
		m.LLMQueries,
		m.LLMLatency,
		m.ContextResets,
		m.GeneratedMessages,
		m.GenerationSkips,
		m.Judgments,
		m.InteractionState,
	)

	return m
}

// ObserveQuery records one language model round trip.
func (m *Metrics) ObserveQuery(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.LLMQueries.WithLabelValues(result).Inc()
	m.LLMLatency.Observe(d.Seconds())
}

// ContextReset counts a conversational context reset.
func (m *Metrics) ContextReset() {
	if m == nil {
		return
	}
	m.ContextResets.Inc()
}

// MessageGenerated counts a generated message.
func (m *Metrics) MessageGenerated() {
	if m == nil {
		return
	}
	m.GeneratedMessages.Inc()
}

// GenerationSkipped counts a skipped sample slot.
func (m *Metrics) GenerationSkipped(reason string) {
	if m == nil {
		return
	}
	m.GenerationSkips.WithLabelValues(reason).Inc()
}

// Judged counts a trainee decision.
func (m *Metrics) Judged(outcome string) {
	if m == nil {
		return
	}
	m.Judgments.WithLabelValues(outcome).Inc()
}

// SetState marks current as the active state among all.
func (m *Metrics) SetState(current string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.InteractionState.WithLabelValues(s).Set(v)
	}
}
