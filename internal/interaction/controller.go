// Package interaction holds the state machine that decides how trainee
// queries and flag decisions become language model prompts.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/phishcoach/internal/domain"
	"github.com/ashureev/phishcoach/internal/llm"
	"github.com/ashureev/phishcoach/internal/metrics"
	"github.com/ashureev/phishcoach/internal/prompt"
)

// WaitingText is returned for queries that arrive while messages are generated.
const WaitingText = "Messages are being generated. One moment please."

// ErrMessageRequired is returned when a coaching query has no message.
var ErrMessageRequired = errors.New("coaching query requires a message")

// Controller owns the interaction state. It is not safe for concurrent use;
// the session serializes access.
type Controller struct {
	state     State
	templates *prompt.Store
	llm       llm.Service
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// NewController creates a controller in the Init state.
func NewController(templates *prompt.Store, svc llm.Service, m *metrics.Metrics, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		state:     Init,
		templates: templates,
		llm:       svc,
		metrics:   m,
		log:       log,
	}
	m.SetState(Init.String(), StateNames())
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// EnterGenerating moves Init to Generating and resets the conversational
// context. It reports whether the transition happened.
func (c *Controller) EnterGenerating() bool {
	if c.state != Init {
		c.log.Debug("Ignoring generating transition", "state", c.state)
		return false
	}
	c.transition(Generating, true)
	return true
}

// EnterEngaged moves any state to Engaged and resets the conversational context.
func (c *Controller) EnterEngaged() {
	c.transition(Engaged, true)
}

// EnterCoaching moves any state to Coaching. The conversational context is
// kept so feedback can build on earlier discussion of the message.
func (c *Controller) EnterCoaching() {
	c.transition(Coaching, false)
}

func (c *Controller) transition(to State, reset bool) {
	from := c.state
	c.state = to
	if reset {
		c.llm.ResetContext()
	}
	c.metrics.SetState(to.String(), StateNames())
	if from != to {
		c.log.Info("Interaction state changed", "from", from, "to", to, "context_reset", reset)
	}
}

// AnswerUserQuery answers a free-text query, optionally about msg.
func (c *Controller) AnswerUserQuery(ctx context.Context, query string, msg *domain.GeneratedMessage) (string, error) {
	var (
		name string
		vars prompt.Vars
	)

	switch c.state {
	case Generating:
		return WaitingText, nil
	case Init:
		name, vars = prompt.ConversationTrainingContext, prompt.Vars{"query": query}
	case Engaged:
		if msg == nil {
			name, vars = prompt.ConversationTrainingContext, prompt.Vars{"query": query}
		} else {
			name, vars = prompt.ConversationPhishingContextWithMessage, messageVars(query, msg)
		}
	case Coaching:
		if msg == nil {
			return "", ErrMessageRequired
		}
		name, vars = prompt.ConversationPhishingContextWithMessage, messageVars(query, msg)
	default:
		return "", fmt.Errorf("unknown interaction state %d", c.state)
	}

	return c.ask(ctx, name, vars)
}

// FlagMessage returns coaching feedback on the trainee's decision about msg.
// It does not change the state; callers enter Coaching first.
func (c *Controller) FlagMessage(ctx context.Context, msg domain.GeneratedMessage, actual, decided bool) (string, error) {
	name := CoachingTemplate(domain.Classify(actual, decided))
	vars := prompt.Vars{
		"subject":  msg.Subject,
		"sender":   msg.Sender,
		"content":  msg.Content,
		"analysis": msg.AnalysisText(),
	}
	return c.ask(ctx, name, vars)
}

// CoachingTemplate maps a judgment outcome to its coaching template.
func CoachingTemplate(o domain.Outcome) string {
	switch o {
	case domain.OutcomeTruePositive:
		return prompt.CoachingTruePositive
	case domain.OutcomeFalsePositive:
		return prompt.CoachingFalsePositive
	case domain.OutcomeFalseNegative:
		return prompt.CoachingFalseNegative
	default:
		return prompt.CoachingTrueNegative
	}
}

func (c *Controller) ask(ctx context.Context, name string, vars prompt.Vars) (string, error) {
	p, err := c.templates.Render(name, vars)
	if err != nil {
		return "", err
	}
	c.log.Debug("Querying language model", "state", c.state, "template", name)

	resp, err := c.llm.Query(ctx, p)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return resp, nil
}

func messageVars(query string, msg *domain.GeneratedMessage) prompt.Vars {
	return prompt.Vars{
		"query":   query,
		"subject": msg.Subject,
		"sender":  msg.Sender,
		"content": msg.Content,
	}
}
