package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveQuery(time.Second, nil)
	m.ObserveQuery(time.Second, errors.New("boom"))
	m.ContextReset()
	m.MessageGenerated()
	m.GenerationSkipped("parse")
	m.Judged("true_positive")
	m.SetState("ENGAGED", []string{"INIT", "GENERATING", "ENGAGED", "COACHING"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMQueries.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMQueries.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContextResets))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GeneratedMessages))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationSkips.WithLabelValues("parse")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Judgments.WithLabelValues("true_positive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InteractionState.WithLabelValues("ENGAGED")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InteractionState.WithLabelValues("INIT")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveQuery(time.Second, nil)
		m.ContextReset()
		m.MessageGenerated()
		m.GenerationSkipped("parse")
		m.Judged("true_negative")
		m.SetState("INIT", []string{"INIT"})
	})
}
