package prompts

import (
	"fmt"
	"strings"

	"github.com/entrhq/webtest/pkg/types"
)

// PromptBuilder assembles a role's system prompt from static sections and
// session-specific context.
type PromptBuilder struct {
	sections     []string
	instructions string
	allowedURLs  []string
}

// NewPromptBuilder creates a builder seeded with the given static sections.
func NewPromptBuilder(sections ...string) *PromptBuilder {
	return &PromptBuilder{sections: sections}
}

// WithSection appends a static section.
func (pb *PromptBuilder) WithSection(section string) *PromptBuilder {
	if section != "" {
		pb.sections = append(pb.sections, section)
	}
	return pb
}

// WithCustomInstructions adds user-provided instructions, such as a
// scenario's extra guidance.
func (pb *PromptBuilder) WithCustomInstructions(instructions string) *PromptBuilder {
	pb.instructions = strings.TrimSpace(instructions)
	return pb
}

// WithAllowedURLs lists the URL patterns the security policy accepts.
func (pb *PromptBuilder) WithAllowedURLs(patterns []string) *PromptBuilder {
	pb.allowedURLs = patterns
	return pb
}

// Build renders the system prompt.
func (pb *PromptBuilder) Build() string {
	var b strings.Builder

	if pb.instructions != "" {
		b.WriteString("<custom_instructions>\n")
		b.WriteString(pb.instructions)
		b.WriteString("\n</custom_instructions>\n\n")
	}

	for i, s := range pb.sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s)
	}

	if len(pb.allowedURLs) > 0 {
		b.WriteString("\n\n<allowed_urls>\n")
		for _, u := range pb.allowedURLs {
			b.WriteString("- ")
			b.WriteString(u)
			b.WriteString("\n")
		}
		b.WriteString("</allowed_urls>")
	}

	return b.String()
}

// Speaker labels a transcript message for another role's prompt.
func Speaker(msg *types.Message) string {
	return fmt.Sprintf("[%s]: %s", msg.Role, msg.Content)
}

// BuildMessages creates the prompt for role self: the system prompt, the
// task, then the transcript. The role's own earlier messages become assistant
// turns and everything else is a labeled user turn. A non-empty extra is
// appended as a final user message and is not part of the transcript.
func BuildMessages(systemPrompt, task string, self types.Role, transcript []*types.Message, extra string) []*types.ChatMessage {
	messages := make([]*types.ChatMessage, 0, len(transcript)+3)
	messages = append(messages, types.NewSystemMessage(systemPrompt))
	messages = append(messages, types.NewUserMessage("Task:\n"+task))

	for _, msg := range transcript {
		if msg.IsEmpty() {
			continue
		}
		if msg.Role == self {
			messages = append(messages, types.NewAssistantMessage(msg.Content))
			continue
		}
		messages = append(messages, types.NewUserMessage(Speaker(msg)))
	}

	if extra != "" {
		messages = append(messages, types.NewUserMessage(extra))
	}
	return messages
}
