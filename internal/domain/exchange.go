package domain

import "time"

// Exchange is one prompt/response round trip with the language model.
type Exchange struct {
	ID        int64
	Prompt    string
	Response  string
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}
