// Package conversation holds the transcript of a test session and the
// monitor that detects degenerate conversations.
package conversation

import (
	"fmt"

	"github.com/entrhq/webtest/pkg/types"
)

// DefaultMaxConsecutiveEmpty is the empty-message streak that ends a session.
const DefaultMaxConsecutiveEmpty = 3

// Reason explains why the monitor asked for termination.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonEmptyStreak  Reason = "empty_streak"
	ReasonTokenCeiling Reason = "token_ceiling"
)

// Verdict is the monitor's decision after observing a message.
type Verdict struct {
	Terminate bool
	Reason    Reason
	Detail    string
}

// Monitor tracks empty-message streaks and cumulative token usage. It has no
// side effects beyond its own counters.
type Monitor struct {
	// MaxConsecutiveEmpty ends the session when this many empty messages
	// arrive in a row. Zero or less means DefaultMaxConsecutiveEmpty.
	MaxConsecutiveEmpty int

	// MaxTotalTokens ends the session once cumulative usage exceeds it.
	// Zero means unbounded.
	MaxTotalTokens int

	emptyStreak int
	totalTokens int
}

// NewMonitor creates a monitor with the given limits.
func NewMonitor(maxConsecutiveEmpty, maxTotalTokens int) *Monitor {
	return &Monitor{
		MaxConsecutiveEmpty: maxConsecutiveEmpty,
		MaxTotalTokens:      maxTotalTokens,
	}
}

func (m *Monitor) emptyLimit() int {
	if m.MaxConsecutiveEmpty <= 0 {
		return DefaultMaxConsecutiveEmpty
	}
	return m.MaxConsecutiveEmpty
}

// Observe updates the counters with msg and returns the verdict.
func (m *Monitor) Observe(msg *types.Message) Verdict {
	if msg == nil || msg.IsEmpty() {
		m.emptyStreak++
	} else {
		m.emptyStreak = 0
	}
	if msg != nil && msg.Usage != nil {
		m.totalTokens += msg.Usage.TotalTokens
	}

	if m.emptyStreak >= m.emptyLimit() {
		return Verdict{
			Terminate: true,
			Reason:    ReasonEmptyStreak,
			Detail:    fmt.Sprintf("%d consecutive empty messages", m.emptyStreak),
		}
	}
	if m.MaxTotalTokens > 0 && m.totalTokens > m.MaxTotalTokens {
		return Verdict{
			Terminate: true,
			Reason:    ReasonTokenCeiling,
			Detail:    fmt.Sprintf("token usage %d exceeds ceiling %d", m.totalTokens, m.MaxTotalTokens),
		}
	}
	return Verdict{}
}

// EmptyStreak returns the current number of consecutive empty messages.
func (m *Monitor) EmptyStreak() int { return m.emptyStreak }

// TotalTokens returns cumulative token usage.
func (m *Monitor) TotalTokens() int { return m.totalTokens }
