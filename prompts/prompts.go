package prompts

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Template keys, one per completion entry point.
const (
	CodeAnalysis   = "code_analysis"
	TicketPlanning = "jira_planning"
	PRReview       = "pr_review"
	SlackResponses = "slack_responses"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Store holds system prompt templates keyed by name.
type Store struct {
	templates map[string]string
}

// Default returns the templates compiled into the binary.
func Default() (*Store, error) {
	return parse(defaultPrompts)
}

// Load returns the built-in templates overlaid with those in path. An empty
// path yields the built-in set.
func Load(path string) (*Store, error) {
	s, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file %s: %w", path, err)
	}
	override, err := parse(data)
	if err != nil {
		return nil, err
	}
	for k, v := range override.templates {
		s.templates[k] = v
	}
	return s, nil
}

func parse(data []byte) (*Store, error) {
	parsed := make(map[string]string)
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}
	return &Store{templates: parsed}, nil
}

// Get returns the template for key. Blank templates count as missing.
func (s *Store) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.templates[key]
	return v, ok && v != ""
}
