// Package source reads the sample messages and the generation context from
// JSON files. Read failures are logged and yield empty data; they never stop
// the training session.
package source

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sort"

	"github.com/ashureev/phishcoach/internal/domain"
)

// Files reads samples and context from the configured paths on every call.
// Callers cache the results.
type Files struct {
	SamplesPath string
	ContextPath string
	Logger      *slog.Logger
}

func (f Files) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

// Samples loads the sample messages. Records missing a subject, sender or
// content are dropped, but still consume their position so that IDs match the
// record's index in the file.
func (f Files) Samples() []domain.SampleMessage {
	log := f.logger()

	data, err := os.ReadFile(f.SamplesPath)
	if err != nil {
		log.Error("Failed to read message samples", "path", f.SamplesPath, "error", err)
		return nil
	}

	samples, err := ParseSamples(data)
	if err != nil {
		log.Error("Failed to decode message samples", "path", f.SamplesPath, "error", err)
		return nil
	}

	log.Info("Message samples loaded", "path", f.SamplesPath, "count", len(samples))
	return samples
}

// ParseSamples decodes a JSON array of sample records.
func ParseSamples(data []byte) ([]domain.SampleMessage, error) {
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}

	samples := make([]domain.SampleMessage, 0, len(records))
	for id, rec := range records {
		subject := nonEmptyString(rec["subject"])
		sender := nonEmptyString(rec["sender"])
		content := nonEmptyString(rec["content"])
		if subject == "" || sender == "" || content == "" {
			continue
		}

		s := domain.SampleMessage{
			ID:         id,
			Subject:    subject,
			Sender:     sender,
			Content:    content,
			IsPhishing: truthy(rec["is_phishing"]),
		}
		if a, ok := rec["analysis"].(string); ok {
			s.Analysis = &a
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// Context loads the environment and user descriptions.
func (f Files) Context() domain.GenerationContext {
	log := f.logger()

	data, err := os.ReadFile(f.ContextPath)
	if errors.Is(err, fs.ErrNotExist) {
		log.Error("Message generation context file does not exist", "path", f.ContextPath)
		return domain.NewGenerationContext()
	}
	if err != nil {
		log.Error("Failed to read message generation context", "path", f.ContextPath, "error", err)
		return domain.NewGenerationContext()
	}

	gc, err := ParseContext(data)
	if err != nil {
		log.Error("Failed to decode message generation context", "path", f.ContextPath, "error", err)
		return domain.NewGenerationContext()
	}

	log.Info("Message generation context loaded",
		"path", f.ContextPath,
		"environments", sortedKeys(gc.Environments),
		"users", sortedKeys(gc.Users),
	)
	return gc
}

// ParseContext decodes a context document whose sections are lists of
// single-key objects mapping an id to its description.
func ParseContext(data []byte) (domain.GenerationContext, error) {
	var doc struct {
		Environments []map[string]string `json:"environments"`
		Users        []map[string]string `json:"users"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.NewGenerationContext(), err
	}

	gc := domain.NewGenerationContext()
	for _, entry := range doc.Environments {
		for id, desc := range entry {
			gc.Environments[id] = desc
		}
	}
	for _, entry := range doc.Users {
		for id, desc := range entry {
			gc.Users[id] = desc
		}
	}
	return gc, nil
}

func nonEmptyString(v any) string {
	s, _ := v.(string)
	return s
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return false
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
