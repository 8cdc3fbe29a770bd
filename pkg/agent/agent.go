// Package agent implements the four roles of a test session.
//
// The tester and debug agent are LLM-backed. The security admin checks plans
// against a static policy and can ask an LLM for a second opinion. The
// executor runs approved plans against the browser:
//
//	tester := agent.NewTester(provider, agent.WithAllowedURLs(cfg.Security.AllowedURLs))
//	admin := agent.NewSecurityAdmin(policy, provider)
//	exec := agent.NewExecutor(browserExecutor)
//	debug := agent.NewDebugger(provider, browserExecutor)
//
// An orchestrator routes between them; each role only reads the shared
// conversation state and returns the next message.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/webtest/pkg/conversation"
	"github.com/entrhq/webtest/pkg/llm"
	"github.com/entrhq/webtest/pkg/llm/parser"
	"github.com/entrhq/webtest/pkg/llm/tokenizer"
	"github.com/entrhq/webtest/pkg/logging"
	"github.com/entrhq/webtest/pkg/types"
)

// Agent is one role in a test session.
type Agent interface {
	// Role returns the role this agent plays.
	Role() types.Role

	// Act reads the conversation and produces the role's next message. An
	// error means the role could not act at all; failures the conversation
	// should react to are reported in the message instead.
	Act(ctx context.Context, state *conversation.State) (*types.Message, error)
}

// Option configures the shared settings of an agent.
type Option func(*base)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithCallOptions sets the generation parameters of every LLM call.
func WithCallOptions(opts ...llm.CallOption) Option {
	return func(b *base) {
		b.callOpts = append(b.callOpts, opts...)
	}
}

// WithTokenizer sets the tokenizer used when a provider reports no usage.
func WithTokenizer(t *tokenizer.Tokenizer) Option {
	return func(b *base) {
		if t != nil {
			b.tokenizer = t
		}
	}
}

// WithInstructions adds custom instructions to the role's system prompt.
func WithInstructions(s string) Option {
	return func(b *base) {
		b.instructions = s
	}
}

// WithAllowedURLs tells the role which URL patterns the policy accepts.
func WithAllowedURLs(patterns []string) Option {
	return func(b *base) {
		b.allowedURLs = patterns
	}
}

// base holds what the LLM-backed roles share.
type base struct {
	provider     llm.Provider
	callOpts     []llm.CallOption
	tokenizer    *tokenizer.Tokenizer
	logger       *logging.Logger
	instructions string
	allowedURLs  []string
}

func newBase(provider llm.Provider, opts []Option) base {
	b := base{
		provider: provider,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	if b.tokenizer == nil {
		b.tokenizer = tokenizer.Default()
	}
	return b
}

// complete runs one LLM call and returns the visible text with usage. When
// the provider reports no usage it is estimated locally.
func (b *base) complete(ctx context.Context, role types.Role, messages []*types.ChatMessage) (string, *types.Usage, error) {
	if b.provider == nil {
		return "", nil, fmt.Errorf("%s has no LLM provider", role)
	}

	completion, err := b.provider.Complete(ctx, messages, b.callOpts...)
	if err != nil {
		return "", nil, fmt.Errorf("%s completion: %w", role, err)
	}
	if completion.Thinking != "" {
		b.logger.Debugf("%s reasoning: %s", role, completion.Thinking)
	}

	content := strings.TrimSpace(parser.Strip(completion.Content))
	usage := completion.Usage
	if usage == nil {
		usage = b.tokenizer.Estimate(messages, completion.Content)
	}
	b.logger.Debugf("%s completion: %d prompt, %d completion tokens (cached=%v)",
		role, usage.PromptTokens, usage.CompletionTokens, completion.Cached)
	return content, usage, nil
}

func newMessage(role types.Role, content string, usage *types.Usage) *types.Message {
	msg := types.NewMessage(role, content)
	msg.Usage = usage
	return msg
}
