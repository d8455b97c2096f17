// Package domain contains core domain types for the phishing training application.
package domain

// SampleMessage is a seed email loaded from the sample source. ID is the
// position of the record in the source document, counting records that were
// dropped as invalid.
type SampleMessage struct {
	ID         int     `json:"id"`
	Subject    string  `json:"subject"`
	Sender     string  `json:"sender"`
	Content    string  `json:"content"`
	IsPhishing bool    `json:"is_phishing"`
	Analysis   *string `json:"analysis"`
}

// GeneratedMessage is a model-written email derived from the sample with the same ID.
type GeneratedMessage struct {
	ID         int     `json:"id"`
	Subject    string  `json:"subject"`
	Sender     string  `json:"sender"`
	Content    string  `json:"content"`
	IsPhishing bool    `json:"is_phishing"`
	Analysis   *string `json:"analysis"`
}

// AnalysisText returns the analysis or an empty string when none was given.
func (m GeneratedMessage) AnalysisText() string {
	if m.Analysis == nil {
		return ""
	}
	return *m.Analysis
}

// GenerationContext maps environment and user ids to their descriptions.
type GenerationContext struct {
	Environments map[string]string `json:"environments"`
	Users        map[string]string `json:"users"`
}

// NewGenerationContext returns an empty, non-nil context.
func NewGenerationContext() GenerationContext {
	return GenerationContext{
		Environments: make(map[string]string),
		Users:        make(map[string]string),
	}
}
