// Package llmtest provides a deterministic language model for tests.
package llmtest

import (
	"context"
	"sync"
)

// Stub answers queries from a fixed script and records every call.
type Stub struct {
	mu sync.Mutex

	// Respond computes the reply for a prompt. When nil, Replies is consumed
	// in order and Default is returned once it runs out.
	Respond func(prompt string) (string, error)
	Replies []string
	Default string

	Prompts []string
	Resets  int
	// Context holds prompts sent since the last reset.
	Context []string
}

// Query implements llm.Service.
func (s *Stub) Query(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Prompts = append(s.Prompts, prompt)
	s.Context = append(s.Context, prompt)

	if s.Respond != nil {
		return s.Respond(prompt)
	}
	if len(s.Replies) > 0 {
		r := s.Replies[0]
		s.Replies = s.Replies[1:]
		return r, nil
	}
	return s.Default, nil
}

// ResetContext implements llm.Service.
func (s *Stub) ResetContext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Resets++
	s.Context = nil
}

// Calls returns the number of queries made.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Prompts)
}

// LastPrompt returns the most recent prompt, or "" when none was sent.
func (s *Stub) LastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Prompts) == 0 {
		return ""
	}
	return s.Prompts[len(s.Prompts)-1]
}

// ResetCount returns the number of context resets.
func (s *Stub) ResetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Resets
}
