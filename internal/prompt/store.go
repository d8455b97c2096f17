// Package prompt loads and renders the named prompt templates used to talk to
// the language model.
//
// Templates are Go text/template strings with the sprig function map. Every
// template receives a Vars map; referencing a key that was not supplied is a
// render error rather than a silent "<no value>".
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"gopkg.in/yaml.v3"
)

// Template names the core depends on.
const (
	ConversationTrainingContext            = "conversation-training-context"
	ConversationPhishingContextWithMessage = "conversation-phishing-context-with-message"
	CoachingTruePositive                   = "coaching-true-positive"
	CoachingFalsePositive                  = "coaching-false-positive"
	CoachingFalseNegative                  = "coaching-false-negative"
	CoachingTrueNegative                   = "coaching-true-negative"
	MessageGenerationPhishing              = "message-generation-phishing"
	MessageGenerationNoPhishing            = "message-generation-no-phishing"
)

// RequiredNames lists every template that must be present in a template set.
var RequiredNames = []string{
	ConversationTrainingContext,
	ConversationPhishingContextWithMessage,
	CoachingTruePositive,
	CoachingFalsePositive,
	CoachingFalseNegative,
	CoachingTrueNegative,
	MessageGenerationPhishing,
	MessageGenerationNoPhishing,
}

// ErrMissingTemplate is returned when a required template name is absent.
var ErrMissingTemplate = errors.New("missing prompt template")

// Vars are the named placeholder values passed to a template.
type Vars map[string]string

// Store holds a parsed, immutable template set.
type Store struct {
	raw    map[string]string
	parsed map[string]*template.Template
}

// Load reads a YAML mapping of template name to template text from path.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt templates: %w", err)
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode prompt templates %s: %w", path, err)
	}

	return New(raw)
}

// New validates and parses a template set.
func New(raw map[string]string) (*Store, error) {
	var missing []string
	for _, name := range RequiredNames {
		if strings.TrimSpace(raw[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingTemplate, strings.Join(missing, ", "))
	}

	s := &Store{
		raw:    make(map[string]string, len(raw)),
		parsed: make(map[string]*template.Template, len(raw)),
	}
	for name, text := range raw {
		t, err := template.New(name).
			Funcs(sprig.TxtFuncMap()).
			Option("missingkey=error").
			Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %q: %w", name, err)
		}
		s.raw[name] = text
		s.parsed[name] = t
	}

	return s, nil
}

// Templates returns a copy of the template set keyed by name.
func (s *Store) Templates() map[string]string {
	out := make(map[string]string, len(s.raw))
	for k, v := range s.raw {
		out[k] = v
	}
	return out
}

// Names returns the sorted template names.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.raw))
	for k := range s.raw {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Render formats the named template with vars.
func (s *Store) Render(name string, vars Vars) (string, error) {
	t, ok := s.parsed[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingTemplate, name)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, map[string]string(vars)); err != nil {
		return "", fmt.Errorf("render prompt template %q: %w", name, err)
	}
	return buf.String(), nil
}
