// Package security reviews action plans before they are allowed to run.
package security

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/entrhq/webtest/pkg/plan"
)

// ViolationType identifies the rule a plan broke.
type ViolationType string

const (
	ViolationNoPlan        ViolationType = "no_plan"
	ViolationInvalidPlan   ViolationType = "invalid_plan"
	ViolationActionCount   ViolationType = "action_count"
	ViolationActionType    ViolationType = "action_type"
	ViolationURLScheme     ViolationType = "url_scheme"
	ViolationURLPattern    ViolationType = "url_pattern"
	ViolationValueLength   ViolationType = "value_length"
	ViolationScriptPayload ViolationType = "script_payload"
)

// Violation is a single policy failure.
type Violation struct {
	Type    ViolationType
	Message string
	Action  int // 1-based action index, 0 for plan-level violations
}

func (v *Violation) Error() string {
	if v.Action > 0 {
		return fmt.Sprintf("policy violation (%s) in action %d: %s", v.Type, v.Action, v.Message)
	}
	return fmt.Sprintf("policy violation (%s): %s", v.Type, v.Message)
}

// Config defines the rules a plan must satisfy.
type Config struct {
	AllowedURLs    []string          `yaml:"allowed_urls" json:"allowed_urls"`
	DeniedURLs     []string          `yaml:"denied_urls" json:"denied_urls"`
	AllowedActions []plan.ActionType `yaml:"allowed_actions" json:"allowed_actions"`
	MaxActions     int               `yaml:"max_actions" json:"max_actions"`
	MaxValueLength int               `yaml:"max_value_length" json:"max_value_length"`
}

// DefaultConfig allows every action type against any http(s) URL.
func DefaultConfig() Config {
	return Config{
		AllowedActions: plan.ActionTypes(),
		MaxActions:     50,
		MaxValueLength: 2000,
	}
}

// Policy is a compiled Config.
type Policy struct {
	config  Config
	urls    *URLMatcher
	actions map[plan.ActionType]bool
}

// NewPolicy compiles the URL patterns in cfg.
func NewPolicy(cfg Config) (*Policy, error) {
	matcher, err := NewURLMatcher(cfg.AllowedURLs, cfg.DeniedURLs)
	if err != nil {
		return nil, err
	}
	actions := make(map[plan.ActionType]bool, len(cfg.AllowedActions))
	for _, a := range cfg.AllowedActions {
		actions[a] = true
	}
	return &Policy{config: cfg, urls: matcher, actions: actions}, nil
}

// Review returns every violation found in p. A nil plan is itself a violation.
func (pol *Policy) Review(p *plan.Plan) []*Violation {
	if p == nil {
		return []*Violation{{Type: ViolationNoPlan, Message: "no structured action plan was proposed"}}
	}

	var out []*Violation
	if err := p.Validate(); err != nil {
		out = append(out, &Violation{Type: ViolationInvalidPlan, Message: err.Error()})
	}
	if pol.config.MaxActions > 0 && len(p.Actions) > pol.config.MaxActions {
		out = append(out, &Violation{
			Type:    ViolationActionCount,
			Message: fmt.Sprintf("plan has %d actions, limit is %d", len(p.Actions), pol.config.MaxActions),
		})
	}

	for i, a := range p.Actions {
		idx := i + 1
		if len(pol.actions) > 0 && !pol.actions[a.Type] {
			out = append(out, &Violation{Type: ViolationActionType, Action: idx,
				Message: fmt.Sprintf("action type %q is not allowed", a.Type)})
		}
		if a.Type == plan.ActionNavigate {
			if v := pol.checkURL(a.URL); v != nil {
				v.Action = idx
				out = append(out, v)
			}
		}
		if pol.config.MaxValueLength > 0 && len(a.Value) > pol.config.MaxValueLength {
			out = append(out, &Violation{Type: ViolationValueLength, Action: idx,
				Message: fmt.Sprintf("value is %d characters, limit is %d", len(a.Value), pol.config.MaxValueLength)})
		}
		if looksLikeScript(a.Target) || looksLikeScript(a.Value) {
			out = append(out, &Violation{Type: ViolationScriptPayload, Action: idx,
				Message: "selectors and values must not carry script payloads"})
		}
	}
	return out
}

// Check is Review folded into a single error.
func (pol *Policy) Check(p *plan.Plan) error {
	var errs []error
	for _, v := range pol.Review(p) {
		errs = append(errs, v)
	}
	return errors.Join(errs...)
}

func (pol *Policy) checkURL(raw string) *Violation {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return &Violation{Type: ViolationURLScheme, Message: fmt.Sprintf("unparseable url %q", raw)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &Violation{Type: ViolationURLScheme, Message: fmt.Sprintf("scheme %q is not allowed for %s", u.Scheme, raw)}
	}
	if !pol.urls.IsAllowed(u) {
		return &Violation{Type: ViolationURLPattern, Message: fmt.Sprintf("url %s does not match allowed patterns", raw)}
	}
	return nil
}

func looksLikeScript(s string) bool {
	l := strings.ToLower(s)
	return strings.Contains(l, "javascript:") || strings.Contains(l, "<script")
}
