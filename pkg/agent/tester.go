package agent

import (
	"context"

	"github.com/entrhq/webtest/pkg/agent/prompts"
	"github.com/entrhq/webtest/pkg/conversation"
	"github.com/entrhq/webtest/pkg/llm"
	"github.com/entrhq/webtest/pkg/types"
)

// Tester writes action plans for the task and revises them after rejections
// and debug analyses.
type Tester struct {
	base
	systemPrompt string
}

// NewTester creates the tester role.
func NewTester(provider llm.Provider, opts ...Option) *Tester {
	t := &Tester{base: newBase(provider, opts)}
	t.systemPrompt = prompts.NewPromptBuilder(prompts.TesterPrompt, prompts.ActionFormatPrompt, prompts.TesterRulesPrompt).
		WithCustomInstructions(t.instructions).
		WithAllowedURLs(t.allowedURLs).
		Build()
	return t
}

// Role returns types.RoleTester.
func (t *Tester) Role() types.Role {
	return types.RoleTester
}

// Act asks the LLM for the next plan.
func (t *Tester) Act(ctx context.Context, state *conversation.State) (*types.Message, error) {
	messages := prompts.BuildMessages(t.systemPrompt, state.Task(), types.RoleTester, state.Messages(), "")
	content, usage, err := t.complete(ctx, types.RoleTester, messages)
	if err != nil {
		return nil, err
	}
	return newMessage(types.RoleTester, content, usage), nil
}
