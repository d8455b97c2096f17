// Package generation turns sample messages into model-written training
// messages, one batch at a time.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/phishcoach/internal/domain"
	"github.com/ashureev/phishcoach/internal/llm"
	"github.com/ashureev/phishcoach/internal/metrics"
	"github.com/ashureev/phishcoach/internal/prompt"
)

// Sources supplies the sample messages and the generation context.
type Sources interface {
	Samples() []domain.SampleMessage
	Context() domain.GenerationContext
}

// Options configures a Generator.
type Options struct {
	// NormalizeHTML escapes generated content and converts its whitespace
	// to HTML. When false the content is stored as returned by the model.
	NormalizeHTML bool
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Generator is a resumable generation pipeline. Samples and context are read
// once on first use. The cursor and the accumulated collection are not safe
// for concurrent use; the session serializes access.
type Generator struct {
	sources   Sources
	templates *prompt.Store
	llm       llm.Service
	normalize bool
	metrics   *metrics.Metrics
	log       *slog.Logger

	samplesOnce sync.Once
	samples     []domain.SampleMessage
	contextOnce sync.Once
	genCtx      domain.GenerationContext

	// cursor counts produced messages; next is the index of the next prompt
	// to issue. They differ once a slot has been skipped.
	cursor      int
	next        int
	accumulated []domain.GeneratedMessage
}

// New creates a Generator.
func New(sources Sources, templates *prompt.Store, svc llm.Service, opts Options) *Generator {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		sources:   sources,
		templates: templates,
		llm:       svc,
		normalize: opts.NormalizeHTML,
		metrics:   opts.Metrics,
		log:       log,
	}
}

// Samples returns the cached sample messages, loading them on first call.
func (g *Generator) Samples() []domain.SampleMessage {
	g.samplesOnce.Do(func() {
		g.samples = g.sources.Samples()
	})
	return g.samples
}

// Context returns the cached generation context, loading it on first call.
func (g *Generator) Context() domain.GenerationContext {
	g.contextOnce.Do(func() {
		g.genCtx = g.sources.Context()
		if g.genCtx.Environments == nil {
			g.genCtx.Environments = map[string]string{}
		}
		if g.genCtx.Users == nil {
			g.genCtx.Users = map[string]string{}
		}
	})
	return g.genCtx
}

// BuildPrompts renders one generation prompt per sample, in sample order.
func (g *Generator) BuildPrompts(samples []domain.SampleMessage, environmentID, userID string) ([]string, error) {
	gc := g.Context()

	env, ok := gc.Environments[environmentID]
	if !ok {
		g.log.Warn("Unknown environment id", "environment_id", environmentID)
	}
	user, ok := gc.Users[userID]
	if !ok {
		g.log.Warn("Unknown user id", "user_id", userID)
	}

	prompts := make([]string, 0, len(samples))
	for _, s := range samples {
		name := prompt.MessageGenerationNoPhishing
		if s.IsPhishing {
			name = prompt.MessageGenerationPhishing
		}
		p, err := g.templates.Render(name, prompt.Vars{
			"environment_context": env,
			"user_context":        user,
			"subject":             s.Subject,
			"sender":              s.Sender,
			"content":             s.Content,
		})
		if err != nil {
			return nil, fmt.Errorf("build prompt for sample %d: %w", s.ID, err)
		}
		prompts = append(prompts, p)
	}
	return prompts, nil
}

// GenerateBatch issues up to size prompts starting after the last issued one
// and returns the messages produced. A slot whose response has no usable
// content is skipped and never retried. A failed query stops the batch and
// leaves its slot to be issued again on the next call; the messages produced
// before it are returned with the error. Once every prompt has been issued it
// returns an empty batch without side effects.
func (g *Generator) GenerateBatch(ctx context.Context, environmentID, userID string, size int) ([]domain.GeneratedMessage, error) {
	samples := g.Samples()
	if g.next >= len(samples) || size <= 0 {
		return nil, nil
	}

	prompts, err := g.BuildPrompts(samples, environmentID, userID)
	if err != nil {
		return nil, err
	}

	end := min(g.next+size, len(prompts))
	var batch []domain.GeneratedMessage
	for i := g.next; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		msg, ok, err := g.generateOne(ctx, samples[i], prompts[i])
		if err != nil {
			return batch, fmt.Errorf("generate message for sample %d: %w", samples[i].ID, err)
		}
		g.next = i + 1
		if !ok {
			continue
		}
		g.accumulated = append(g.accumulated, msg)
		g.cursor++
		batch = append(batch, msg)
		g.metrics.MessageGenerated()
	}

	g.log.Info("Generation batch finished",
		"requested", size,
		"produced", len(batch),
		"cursor", g.cursor,
		"next", g.next,
		"total", len(prompts),
	)
	return batch, nil
}

func (g *Generator) generateOne(ctx context.Context, sample domain.SampleMessage, p string) (domain.GeneratedMessage, bool, error) {
	resp, err := g.llm.Query(ctx, p)
	// Every generation call starts from an empty conversation.
	g.llm.ResetContext()
	if err != nil {
		g.log.Warn("Language model query failed, slot will be retried", "sample_id", sample.ID, "error", err)
		return domain.GeneratedMessage{}, false, err
	}

	fields := llm.ExtractJSONObject(resp)
	content, _ := fields["content"].(string)
	if strings.TrimSpace(content) == "" {
		g.log.Warn("Skipping sample: response has no content", "sample_id", sample.ID)
		g.metrics.GenerationSkipped("parse")
		return domain.GeneratedMessage{}, false, nil
	}

	subject := stringOr(fields["subject"], sample.Subject)
	sender := stringOr(fields["sender"], sample.Sender)
	if g.normalize {
		content = NormalizeContent(content)
	}

	g.log.Debug("Message generated", "sample_id", sample.ID, "subject", subject)
	return domain.GeneratedMessage{
		ID:         sample.ID,
		Subject:    subject,
		Sender:     sender,
		Content:    content,
		IsPhishing: sample.IsPhishing,
		Analysis:   sample.Analysis,
	}, true, nil
}

// Accumulated returns every message produced since the last reset.
func (g *Generator) Accumulated() []domain.GeneratedMessage {
	out := make([]domain.GeneratedMessage, len(g.accumulated))
	copy(out, g.accumulated)
	return out
}

// Find returns the accumulated message with the given id.
func (g *Generator) Find(id int) (domain.GeneratedMessage, bool) {
	for _, m := range g.accumulated {
		if m.ID == id {
			return m, true
		}
	}
	return domain.GeneratedMessage{}, false
}

// Reset clears the cursor and the accumulated collection. Cached samples and
// context are kept.
func (g *Generator) Reset() {
	g.cursor = 0
	g.next = 0
	g.accumulated = nil
	g.log.Info("Generation reset")
}

// NormalizesHTML reports whether generated content is escaped HTML rather
// than raw model text.
func (g *Generator) NormalizesHTML() bool {
	return g.normalize
}

// Cursor returns the number of messages produced since the last reset.
func (g *Generator) Cursor() int {
	return g.cursor
}

// TotalPrompts returns the number of prompts available, one per sample.
func (g *Generator) TotalPrompts() int {
	return len(g.Samples())
}

// Exhausted reports whether every prompt has been issued.
func (g *Generator) Exhausted() bool {
	return g.next >= len(g.Samples())
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}
