package session

import (
	"context"
	"fmt"

	"github.com/ashureev/phishcoach/internal/domain"
	"github.com/ashureev/phishcoach/internal/interaction"
)

// Batch is the result of polling for messages.
type Batch struct {
	Messages  []domain.GeneratedMessage `json:"messages"`
	Completed bool                      `json:"generation_completed"`
}

// Start begins generation when the session has just started.
func (s *Session) Start() interaction.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.EnterGenerating()
	return s.ctrl.State()
}

// NextMessages returns newly generated messages while generating, or every
// accumulated message once generation is over. When generation runs out of
// prompts the session moves to Engaged and the batch is marked completed.
// A failed query is returned as an error only when nothing was produced;
// its slot is issued again on the next call.
func (s *Session) NextMessages(ctx context.Context) (Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl.State() != interaction.Generating {
		s.ctrl.EnterEngaged()
		return Batch{Messages: s.gen.Accumulated(), Completed: true}, nil
	}

	msgs, err := s.gen.GenerateBatch(ctx, s.envID, s.userID, s.batchSize)
	if err != nil {
		if len(msgs) == 0 {
			return Batch{}, err
		}
		s.log.Warn("Generation batch interrupted", "produced", len(msgs), "error", err)
		return Batch{Messages: msgs}, nil
	}
	if msgs == nil {
		msgs = []domain.GeneratedMessage{}
	}

	completed := len(msgs) == 0 && s.gen.Exhausted()
	if completed {
		s.ctrl.EnterEngaged()
	}
	return Batch{Messages: msgs, Completed: completed}, nil
}

// FlagResult is the outcome of a flag decision.
type FlagResult struct {
	Response string           `json:"response"`
	Outcome  domain.Outcome   `json:"outcome,omitempty"`
	Judgment *domain.Judgment `json:"-"`
}

// Flag records the trainee's decision about the message with the given id
// and returns coaching feedback. While generating it returns the waiting
// text and records nothing.
func (s *Session) Flag(ctx context.Context, id int, decided bool) (FlagResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl.State() == interaction.Generating {
		return FlagResult{Response: interaction.WaitingText}, nil
	}

	msg, ok := s.gen.Find(id)
	if !ok {
		return FlagResult{}, fmt.Errorf("%w: %d", ErrMessageNotFound, id)
	}

	s.ctrl.EnterCoaching()

	outcome := domain.Classify(msg.IsPhishing, decided)
	s.metrics.Judged(string(outcome))
	result := FlagResult{Outcome: outcome}

	if s.journal != nil {
		j, err := s.journal.RecordJudgment(ctx, domain.Judgment{
			MessageID: msg.ID,
			Subject:   msg.Subject,
			Actual:    msg.IsPhishing,
			Decided:   decided,
			Outcome:   outcome,
		})
		if err != nil {
			s.log.Warn("Failed to record judgment", "message_id", msg.ID, "error", err)
		} else {
			result.Judgment = &j
		}
	}

	s.log.Info("Message flagged", "message_id", msg.ID, "outcome", outcome)

	resp, err := s.ctrl.FlagMessage(ctx, msg, msg.IsPhishing, decided)
	if err != nil {
		return result, err
	}
	result.Response = resp
	return result, nil
}

// Show marks the message with the given id as opened for viewing. While
// generating it does nothing.
func (s *Session) Show(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl.State() == interaction.Generating {
		return nil
	}
	if _, ok := s.gen.Find(id); !ok {
		return fmt.Errorf("%w: %d", ErrMessageNotFound, id)
	}
	s.ctrl.EnterEngaged()
	return nil
}

// Query answers a free-text query, about the message with the given id when
// id is not nil.
func (s *Session) Query(ctx context.Context, query string, id *int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msg *domain.GeneratedMessage
	if id != nil && s.ctrl.State() != interaction.Generating {
		m, ok := s.gen.Find(*id)
		if !ok {
			return "", fmt.Errorf("%w: %d", ErrMessageNotFound, *id)
		}
		msg = &m
	}
	return s.ctrl.AnswerUserQuery(ctx, query, msg)
}
