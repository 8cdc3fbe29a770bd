// Package scenario loads declarative test scenarios from YAML files.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is one test to run.
type Scenario struct {
	Name        string   `yaml:"name"`
	Task        string   `yaml:"task"`
	BaseURL     string   `yaml:"base_url"`
	AllowedURLs []string `yaml:"allowed_urls"`
	// MaxRounds overrides the configured round budget when positive.
	MaxRounds int `yaml:"max_rounds"`
}

// Load reads a scenario file. A missing name defaults to the file's base name.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// Parse decodes and validates a scenario. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("scenario is empty")
		}
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks required fields.
func (s *Scenario) Validate() error {
	if strings.TrimSpace(s.Task) == "" {
		return errors.New("scenario task is required")
	}
	if s.MaxRounds < 0 {
		return errors.New("scenario max_rounds cannot be negative")
	}
	if s.BaseURL != "" && !strings.HasPrefix(s.BaseURL, "http://") && !strings.HasPrefix(s.BaseURL, "https://") {
		return fmt.Errorf("scenario base_url must be http or https: %s", s.BaseURL)
	}
	return nil
}

// Prompt is the task text given to the tester, including the base URL when
// one is set.
func (s *Scenario) Prompt() string {
	if s.BaseURL == "" || strings.Contains(s.Task, s.BaseURL) {
		return s.Task
	}
	return fmt.Sprintf("%s\n\nStart at %s.", strings.TrimSpace(s.Task), s.BaseURL)
}

// FromTask wraps an ad-hoc task string.
func FromTask(task string) *Scenario {
	return &Scenario{Name: "adhoc", Task: task}
}
