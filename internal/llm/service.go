// Package llm talks to the language model backend.
//
// The model is treated as an opaque prompt-in, text-out service that keeps a
// running conversational context between queries until it is reset.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("language model returned an empty response")

// Service is the language model contract used by the training session.
type Service interface {
	// Query sends prompt in the current conversational context and returns the answer.
	Query(ctx context.Context, prompt string) (string, error)

	// ResetContext clears the running conversation so the next Query starts fresh.
	ResetContext()
}
