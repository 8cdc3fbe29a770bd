package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/entrhq/webtest/pkg/agent/prompts"
	"github.com/entrhq/webtest/pkg/conversation"
	"github.com/entrhq/webtest/pkg/llm"
	"github.com/entrhq/webtest/pkg/plan"
	"github.com/entrhq/webtest/pkg/security"
	"github.com/entrhq/webtest/pkg/types"
)

const (
	approvedPrefix = "APPROVED: "
	rejectedPrefix = "REJECTED: "
)

var (
	decisionPattern = regexp.MustCompile(`(?i)\b(approved|rejected)\s*:\s*(.*)`)
	approvedWord    = regexp.MustCompile(`(?i)approved`)
)

// SecurityAdmin reviews the latest tester plan. Every plan goes through the
// static policy; when a provider is set, plans that pass are also reviewed by
// the LLM.
type SecurityAdmin struct {
	base
	policy       *security.Policy
	systemPrompt string
}

// NewSecurityAdmin creates the security admin role. provider may be nil to
// rely on the policy alone.
func NewSecurityAdmin(policy *security.Policy, provider llm.Provider, opts ...Option) *SecurityAdmin {
	a := &SecurityAdmin{
		base:   newBase(provider, opts),
		policy: policy,
	}
	a.systemPrompt = prompts.NewPromptBuilder(prompts.SecurityAdminPrompt).
		WithCustomInstructions(a.instructions).
		WithAllowedURLs(a.allowedURLs).
		Build()
	return a
}

// Role returns types.RoleSecurityAdmin.
func (a *SecurityAdmin) Role() types.Role {
	return types.RoleSecurityAdmin
}

// Act approves or rejects the most recent tester plan.
func (a *SecurityAdmin) Act(ctx context.Context, state *conversation.State) (*types.Message, error) {
	proposal := state.LastFrom(types.RoleTester)
	if proposal == nil {
		return reject("no plan has been proposed", nil), nil
	}

	p, err := plan.Extract(proposal.Content)
	if err != nil {
		a.logger.Infof("rejecting message without a plan: %v", err)
		return reject(fmt.Sprintf("no structured action plan found (%v). Send exactly one fenced json block.", err), nil), nil
	}

	if violations := a.policy.Review(p); len(violations) > 0 {
		issues := make([]string, 0, len(violations))
		for _, v := range violations {
			issues = append(issues, v.Error())
		}
		a.logger.Infof("plan rejected by policy: %d violations", len(violations))
		return reject(strings.Join(issues, "; "), nil), nil
	}

	if a.provider == nil {
		return approve(fmt.Sprintf("plan with %d actions passes the security policy", len(p.Actions)), nil), nil
	}

	review := fmt.Sprintf("Task:\n%s\n\nProposed plan:\n%s", state.Task(), plan.Format(p))
	messages := []*types.ChatMessage{
		types.NewSystemMessage(a.systemPrompt),
		types.NewUserMessage(review),
	}
	content, usage, err := a.complete(ctx, types.RoleSecurityAdmin, messages)
	if err != nil {
		return nil, err
	}

	approved, reason := ParseDecision(content)
	if approved {
		return approve(reason, usage), nil
	}
	return reject(reason, usage), nil
}

// ParseDecision reads the first APPROVED: or REJECTED: line of a review. A
// review without a decision counts as a rejection.
func ParseDecision(text string) (approved bool, reason string) {
	m := decisionPattern.FindStringSubmatch(text)
	if m == nil {
		return false, "the reviewer gave no decision"
	}
	reason = strings.TrimSpace(m[2])
	if strings.EqualFold(m[1], "approved") {
		if reason == "" {
			reason = "plan is safe to run"
		}
		return true, reason
	}
	if reason == "" {
		reason = "the reviewer gave no reason"
	}
	return false, reason
}

func approve(reason string, usage *types.Usage) *types.Message {
	return newMessage(types.RoleSecurityAdmin, approvedPrefix+reason, usage)
}

// reject builds a rejection. The router approves any security message that
// mentions the word, so it is rewritten out of the issues.
func reject(issues string, usage *types.Usage) *types.Message {
	issues = approvedWord.ReplaceAllString(issues, "permitted")
	return newMessage(types.RoleSecurityAdmin, rejectedPrefix+issues, usage)
}
