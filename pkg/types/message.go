package types

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies a participant in a test session. The set is closed.
type Role int

const (
	RoleTester        Role = iota // RoleTester authors action plans.
	RoleSecurityAdmin             // RoleSecurityAdmin reviews plans before they run.
	RoleExecutor                  // RoleExecutor runs approved plans against the browser.
	RoleDebugAgent                // RoleDebugAgent diagnoses executor failures.
)

// Capability is the fixed capability tag carried by each role.
type Capability string

const (
	CapabilityAuthor    Capability = "author"
	CapabilityReviewer  Capability = "reviewer"
	CapabilityExecutor  Capability = "executor"
	CapabilityDiagnoser Capability = "diagnoser"
)

var roleNames = [...]string{
	RoleTester:        "tester",
	RoleSecurityAdmin: "security_admin",
	RoleExecutor:      "executor",
	RoleDebugAgent:    "debug_agent",
}

var roleCapabilities = [...]Capability{
	RoleTester:        CapabilityAuthor,
	RoleSecurityAdmin: CapabilityReviewer,
	RoleExecutor:      CapabilityExecutor,
	RoleDebugAgent:    CapabilityDiagnoser,
}

// Roles returns every role in declaration order.
func Roles() []Role {
	return []Role{RoleTester, RoleSecurityAdmin, RoleExecutor, RoleDebugAgent}
}

func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roleNames[r]
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	return r >= RoleTester && r <= RoleDebugAgent
}

// Capability returns the capability tag of the role.
func (r Role) Capability() Capability {
	if !r.Valid() {
		return ""
	}
	return roleCapabilities[r]
}

// ParseRole maps a role name back to its Role.
func ParseRole(name string) (Role, error) {
	for i, n := range roleNames {
		if n == strings.ToLower(strings.TrimSpace(name)) {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Usage contains token usage statistics from an LLM API call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the element-wise sum of two usages. Nil operands count as zero.
func (u *Usage) Add(other *Usage) *Usage {
	out := &Usage{}
	for _, v := range []*Usage{u, other} {
		if v == nil {
			continue
		}
		out.PromptTokens += v.PromptTokens
		out.CompletionTokens += v.CompletionTokens
		out.TotalTokens += v.TotalTokens
	}
	return out
}

// Message is one entry in a session transcript.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Usage is set when the message was produced by an LLM call.
	Usage *Usage `json:"usage,omitempty"`

	// Done marks the message that announced the finished report.
	Done bool `json:"done,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role Role, content string) *Message {
	return &Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// IsEmpty reports whether the content is empty or whitespace only.
func (m *Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == ""
}

// ChatRole is the role of a message sent to an LLM.
type ChatRole string

const (
	ChatSystem    ChatRole = "system"
	ChatUser      ChatRole = "user"
	ChatAssistant ChatRole = "assistant"
)

// ChatMessage is a single prompt message for an LLM provider.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// NewSystemMessage creates a system prompt message.
func NewSystemMessage(content string) *ChatMessage {
	return &ChatMessage{Role: ChatSystem, Content: content}
}

// NewUserMessage creates a user prompt message.
func NewUserMessage(content string) *ChatMessage {
	return &ChatMessage{Role: ChatUser, Content: content}
}

// NewAssistantMessage creates an assistant prompt message.
func NewAssistantMessage(content string) *ChatMessage {
	return &ChatMessage{Role: ChatAssistant, Content: content}
}
