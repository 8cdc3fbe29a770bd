package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var fencePattern = regexp.MustCompile("(?s)```([A-Za-z]*)[ \t]*\r?\n(.*?)```")

// Extract finds the first action plan in an LLM message. Fenced json and
// yaml blocks are tried in order; without fences the outermost JSON object
// is used.
func Extract(text string) (*Plan, error) {
	var lastErr error
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		lang := strings.ToLower(m[1])
		body := m[2]

		var p *Plan
		var err error
		switch lang {
		case "json", "":
			p, err = decodeJSON(body)
			if err != nil && lang == "" {
				p, err = decodeYAML(body)
			}
		case "yaml", "yml":
			p, err = decodeYAML(body)
		default:
			continue
		}
		if err == nil && len(p.Actions) > 0 {
			return p, nil
		}
		if err != nil {
			lastErr = err
		}
	}

	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		p, err := decodeJSON(text[start : end+1])
		if err == nil && len(p.Actions) > 0 {
			return p, nil
		}
		if err != nil {
			lastErr = err
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPlan, lastErr)
	}
	return nil, ErrNoPlan
}

func decodeJSON(body string) (*Plan, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("invalid JSON plan: %w", err)
	}
	return &p, nil
}

func decodeYAML(body string) (*Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(strings.NewReader(body))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("invalid YAML plan: %w", err)
	}
	return &p, nil
}

// Format renders a plan as a fenced JSON block, the form the tester emits.
func Format(p *Plan) string {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return ""
	}
	return "```json\n" + string(data) + "\n```"
}
