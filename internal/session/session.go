// Package session owns the single training session of the process. One mutex
// guards the interaction state, the generation cursor and the accumulated
// messages, so every operation sees and leaves them consistent.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ashureev/phishcoach/internal/domain"
	"github.com/ashureev/phishcoach/internal/generation"
	"github.com/ashureev/phishcoach/internal/interaction"
	"github.com/ashureev/phishcoach/internal/metrics"
)

// ErrMessageNotFound is returned when a message id is not among the
// accumulated messages.
var ErrMessageNotFound = errors.New("message not found")

// Journal records trainee judgments.
type Journal interface {
	RecordJudgment(ctx context.Context, j domain.Judgment) (domain.Judgment, error)
}

// Options configures a Session.
type Options struct {
	EnvironmentID string
	UserID        string
	BatchSize     int
	Journal       Journal
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Session serializes access to the interaction controller and the
// generation pipeline.
type Session struct {
	mu   sync.Mutex
	ctrl *interaction.Controller
	gen  *generation.Generator

	envID     string
	userID    string
	batchSize int
	journal   Journal
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// New creates a session around ctrl and gen.
func New(ctrl *interaction.Controller, gen *generation.Generator, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Session{
		ctrl:      ctrl,
		gen:       gen,
		envID:     opts.EnvironmentID,
		userID:    opts.UserID,
		batchSize: batchSize,
		journal:   opts.Journal,
		metrics:   opts.Metrics,
		log:       log,
	}
}

// EnterGenerating moves Init to Generating. It reports whether the
// transition happened.
func (s *Session) EnterGenerating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.EnterGenerating()
}

// EnterEngaged moves the session to Engaged.
func (s *Session) EnterEngaged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.EnterEngaged()
}

// EnterCoaching moves the session to Coaching.
func (s *Session) EnterCoaching() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.EnterCoaching()
}

// State returns the current interaction state.
func (s *Session) State() interaction.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.State()
}

// AnswerUserQuery answers a free-text query, optionally about msg.
func (s *Session) AnswerUserQuery(ctx context.Context, query string, msg *domain.GeneratedMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.AnswerUserQuery(ctx, query, msg)
}

// FlagMessage returns coaching feedback for a decision about msg.
func (s *Session) FlagMessage(ctx context.Context, msg domain.GeneratedMessage, actual, decided bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.FlagMessage(ctx, msg, actual, decided)
}

// GenerateBatch produces up to size new messages.
func (s *Session) GenerateBatch(ctx context.Context, environmentID, userID string, size int) ([]domain.GeneratedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen.GenerateBatch(ctx, environmentID, userID, size)
}

// Accumulated returns every message produced since the last reset.
func (s *Session) Accumulated() []domain.GeneratedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen.Accumulated()
}

// ResetGeneration clears the generation cursor and accumulated messages.
// The interaction state is not changed.
func (s *Session) ResetGeneration() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen.Reset()
	return s.snapshot()
}

// Snapshot describes the session for status endpoints.
type Snapshot struct {
	State        interaction.State `json:"state"`
	Cursor       int               `json:"cursor"`
	Accumulated  int               `json:"accumulated"`
	TotalPrompts int               `json:"total_prompts"`
	Exhausted    bool              `json:"exhausted"`
	// ContentHTML is true when message content is escaped HTML and false
	// when it is raw model text that must be displayed as plain text.
	ContentHTML bool `json:"content_html"`
}

// Snapshot returns the current session status.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		State:        s.ctrl.State(),
		Cursor:       s.gen.Cursor(),
		Accumulated:  len(s.gen.Accumulated()),
		TotalPrompts: s.gen.TotalPrompts(),
		Exhausted:    s.gen.Exhausted(),
		ContentHTML:  s.gen.NormalizesHTML(),
	}
}
