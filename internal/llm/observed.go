package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/phishcoach/internal/domain"
	"github.com/ashureev/phishcoach/internal/metrics"
)

// Recorder persists language model exchanges.
type Recorder interface {
	RecordExchange(ctx context.Context, ex domain.Exchange) error
}

// Observed wraps a Service with metrics and an exchange journal. Journal
// failures are logged and never fail the query.
type Observed struct {
	next     Service
	metrics  *metrics.Metrics
	recorder Recorder
	log      *slog.Logger
}

// NewObserved decorates next. m and rec may be nil.
func NewObserved(next Service, m *metrics.Metrics, rec Recorder, log *slog.Logger) *Observed {
	if log == nil {
		log = slog.Default()
	}
	return &Observed{next: next, metrics: m, recorder: rec, log: log}
}

// Query implements Service.
func (o *Observed) Query(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := o.next.Query(ctx, prompt)
	elapsed := time.Since(start)

	o.metrics.ObserveQuery(elapsed, err)
	if err != nil {
		o.log.Warn("Language model query failed", "duration", elapsed, "error", err)
	} else {
		o.log.Debug("Language model query completed", "duration", elapsed, "prompt_len", len(prompt), "response_len", len(resp))
	}

	if o.recorder != nil {
		ex := domain.Exchange{
			Prompt:    prompt,
			Response:  resp,
			Duration:  elapsed,
			CreatedAt: start.UTC(),
		}
		if err != nil {
			ex.Error = err.Error()
		}
		// Record on a detached context so a cancelled request still leaves a trace.
		if rerr := o.recorder.RecordExchange(context.WithoutCancel(ctx), ex); rerr != nil {
			o.log.Warn("Failed to record language model exchange", "error", rerr)
		}
	}

	return resp, err
}

// ResetContext implements Service.
func (o *Observed) ResetContext() {
	o.next.ResetContext()
	o.metrics.ContextReset()
	o.log.Debug("Language model context reset")
}
