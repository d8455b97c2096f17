package domain

import "time"

// Outcome classifies a trainee decision against the ground truth.
type Outcome string

const (
	OutcomeTruePositive  Outcome = "true_positive"
	OutcomeFalsePositive Outcome = "false_positive"
	OutcomeFalseNegative Outcome = "false_negative"
	OutcomeTrueNegative  Outcome = "true_negative"
)

// Classify returns the outcome for an actual/decided phishing pair.
func Classify(actual, decided bool) Outcome {
	switch {
	case actual && decided:
		return OutcomeTruePositive
	case !actual && decided:
		return OutcomeFalsePositive
	case actual && !decided:
		return OutcomeFalseNegative
	default:
		return OutcomeTrueNegative
	}
}

// Judgment records one flag decision made by the trainee.
type Judgment struct {
	ID        int64     `json:"id"`
	MessageID int       `json:"message_id"`
	Subject   string    `json:"subject"`
	Actual    bool      `json:"is_phishing_actual"`
	Decided   bool      `json:"is_phishing_decided"`
	Outcome   Outcome   `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
}

// Score tallies judgments by outcome.
type Score struct {
	TruePositive  int `json:"true_positive"`
	FalsePositive int `json:"false_positive"`
	FalseNegative int `json:"false_negative"`
	TrueNegative  int `json:"true_negative"`
}

// Total returns the number of judgments in the tally.
func (s Score) Total() int {
	return s.TruePositive + s.FalsePositive + s.FalseNegative + s.TrueNegative
}

// Correct returns the number of judgments that matched the ground truth.
func (s Score) Correct() int {
	return s.TruePositive + s.TrueNegative
}

// Add counts one outcome.
func (s *Score) Add(o Outcome) {
	switch o {
	case OutcomeTruePositive:
		s.TruePositive++
	case OutcomeFalsePositive:
		s.FalsePositive++
	case OutcomeFalseNegative:
		s.FalseNegative++
	case OutcomeTrueNegative:
		s.TrueNegative++
	}
}
