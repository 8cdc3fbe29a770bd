// Package plan defines the structured action plan the tester role produces
// and the executor role runs.
package plan

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ActionType names a browser action.
type ActionType string

const (
	ActionNavigate     ActionType = "navigate"
	ActionClick        ActionType = "click"
	ActionFill         ActionType = "fill"
	ActionHover        ActionType = "hover"
	ActionVerifyExists ActionType = "verify_exists"
	ActionVerifyText   ActionType = "verify_text"
	ActionScreenshot   ActionType = "screenshot"
	ActionEndSession   ActionType = "end_session"
)

// ActionTypes lists every supported action type.
func ActionTypes() []ActionType {
	return []ActionType{
		ActionNavigate, ActionClick, ActionFill, ActionHover,
		ActionVerifyExists, ActionVerifyText, ActionScreenshot, ActionEndSession,
	}
}

// ErrNoPlan is returned when a message contains no decodable plan.
var ErrNoPlan = errors.New("no action plan found")

// Action is a single typed browser request.
type Action struct {
	Type ActionType `json:"type" yaml:"type"`

	// Target is a selector or visible text for click, fill, hover and verify_exists.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	// Value is the text typed by fill.
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// URL is the navigate destination.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Text is the substring checked by verify_text.
	Text string `json:"text,omitempty" yaml:"text,omitempty"`

	// Name labels a screenshot.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	FullPage bool `json:"full_page,omitempty" yaml:"full_page,omitempty"`

	// TimeoutMS overrides the default timeout for hover and verify actions.
	TimeoutMS int `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`

	// WaitForNetworkIdle defaults to true for navigate.
	WaitForNetworkIdle *bool `json:"wait_for_network_idle,omitempty" yaml:"wait_for_network_idle,omitempty"`

	// Status is the final run status for end_session: completed or failed.
	Status string `json:"status,omitempty" yaml:"status,omitempty"`
}

// Timeout returns the action timeout or def when unset.
func (a Action) Timeout(def time.Duration) time.Duration {
	if a.TimeoutMS > 0 {
		return time.Duration(a.TimeoutMS) * time.Millisecond
	}
	return def
}

// NetworkIdle reports whether navigate should wait for network idle.
func (a Action) NetworkIdle() bool {
	return a.WaitForNetworkIdle == nil || *a.WaitForNetworkIdle
}

// Describe renders the action as a short human-readable phrase.
func (a Action) Describe() string {
	switch a.Type {
	case ActionNavigate:
		return fmt.Sprintf("navigate to %s", a.URL)
	case ActionClick:
		return fmt.Sprintf("click %s", a.Target)
	case ActionFill:
		return fmt.Sprintf("fill %s", a.Target)
	case ActionHover:
		return fmt.Sprintf("hover %s", a.Target)
	case ActionVerifyExists:
		return fmt.Sprintf("verify %s exists", a.Target)
	case ActionVerifyText:
		return fmt.Sprintf("verify page contains %q", a.Text)
	case ActionScreenshot:
		return fmt.Sprintf("screenshot %s", a.Name)
	case ActionEndSession:
		return "end session"
	}
	return string(a.Type)
}

// Validate checks the fields required by the action type.
func (a Action) Validate() error {
	switch a.Type {
	case ActionNavigate:
		if strings.TrimSpace(a.URL) == "" {
			return fmt.Errorf("navigate requires url")
		}
	case ActionClick, ActionHover, ActionVerifyExists:
		if strings.TrimSpace(a.Target) == "" {
			return fmt.Errorf("%s requires target", a.Type)
		}
	case ActionFill:
		if strings.TrimSpace(a.Target) == "" {
			return fmt.Errorf("fill requires target")
		}
	case ActionVerifyText:
		if a.Text == "" {
			return fmt.Errorf("verify_text requires text")
		}
	case ActionScreenshot:
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("screenshot requires name")
		}
	case ActionEndSession:
		switch strings.ToLower(a.Status) {
		case "", "completed", "failed":
		default:
			return fmt.Errorf("end_session status must be completed or failed, got %q", a.Status)
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	if a.TimeoutMS < 0 {
		return fmt.Errorf("timeout_ms cannot be negative")
	}
	return nil
}

// Plan is an ordered sequence of actions for one scenario.
type Plan struct {
	Scenario string   `json:"scenario,omitempty" yaml:"scenario,omitempty"`
	Actions  []Action `json:"actions" yaml:"actions"`
}

// Validate checks every action and the plan-level ordering rules.
func (p *Plan) Validate() error {
	if len(p.Actions) == 0 {
		return fmt.Errorf("plan has no actions")
	}
	var errs []error
	for i, a := range p.Actions {
		if err := a.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("action %d: %w", i+1, err))
		}
		if a.Type == ActionEndSession && i != len(p.Actions)-1 {
			errs = append(errs, fmt.Errorf("action %d: end_session must be the last action", i+1))
		}
	}
	return errors.Join(errs...)
}

// Ends reports whether the plan finishes the session.
func (p *Plan) Ends() bool {
	return len(p.Actions) > 0 && p.Actions[len(p.Actions)-1].Type == ActionEndSession
}

// URLs returns every navigate destination in order.
func (p *Plan) URLs() []string {
	var urls []string
	for _, a := range p.Actions {
		if a.Type == ActionNavigate {
			urls = append(urls, a.URL)
		}
	}
	return urls
}
