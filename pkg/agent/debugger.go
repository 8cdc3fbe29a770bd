package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/webtest/pkg/agent/prompts"
	"github.com/entrhq/webtest/pkg/browser"
	"github.com/entrhq/webtest/pkg/conversation"
	"github.com/entrhq/webtest/pkg/llm"
	"github.com/entrhq/webtest/pkg/report"
	"github.com/entrhq/webtest/pkg/types"
)

const (
	// recentSteps is how many report steps the debugger sees.
	recentSteps = 8

	// recentMessages bounds the transcript tail sent to the debugger.
	recentMessages = 6
)

// Inspector exposes the page and report state the debugger diagnoses.
// *browser.Executor implements it.
type Inspector interface {
	Snapshot(ctx context.Context, maxLength int) (*browser.PageSnapshot, error)
	Reporter() *report.Reporter
}

// Debugger analyzes executor failures and suggests plan fixes.
type Debugger struct {
	base
	inspector    Inspector
	snapshotLen  int
	systemPrompt string
}

// NewDebugger creates the debug agent role. inspector may be nil, in which
// case only the transcript is analyzed.
func NewDebugger(provider llm.Provider, inspector Inspector, opts ...Option) *Debugger {
	d := &Debugger{
		base:        newBase(provider, opts),
		inspector:   inspector,
		snapshotLen: browser.DefaultSnapshotLength,
	}
	d.systemPrompt = prompts.NewPromptBuilder(prompts.DebugAgentPrompt).
		WithCustomInstructions(d.instructions).
		Build()
	return d
}

// Role returns types.RoleDebugAgent.
func (d *Debugger) Role() types.Role {
	return types.RoleDebugAgent
}

// Act diagnoses the latest executor message.
func (d *Debugger) Act(ctx context.Context, state *conversation.State) (*types.Message, error) {
	transcript := state.Messages()
	if len(transcript) > recentMessages {
		transcript = transcript[len(transcript)-recentMessages:]
	}

	messages := prompts.BuildMessages(d.systemPrompt, state.Task(), types.RoleDebugAgent, transcript, d.evidence(ctx, state))
	content, usage, err := d.complete(ctx, types.RoleDebugAgent, messages)
	if err != nil {
		return nil, err
	}
	return newMessage(types.RoleDebugAgent, content, usage), nil
}

// evidence collects the failing message, the recent report steps and a page
// snapshot.
func (d *Debugger) evidence(ctx context.Context, state *conversation.State) string {
	var b strings.Builder

	b.WriteString("Diagnose this failure.\n\n")
	if failing := state.LastFrom(types.RoleExecutor); failing != nil {
		b.WriteString("Executor output:\n")
		b.WriteString(failing.Content)
		b.WriteString("\n")
	}

	if d.inspector == nil {
		return b.String()
	}

	if r := d.inspector.Reporter(); r != nil {
		steps := r.Steps()
		start := 0
		if len(steps) > recentSteps {
			start = len(steps) - recentSteps
		}
		if len(steps) > 0 {
			b.WriteString("\nRecent steps:\n")
			for i := start; i < len(steps); i++ {
				b.WriteString(report.Narrate(i+1, steps[i]))
				b.WriteString("\n")
			}
		}
	}

	snap, err := d.inspector.Snapshot(ctx, d.snapshotLen)
	if err != nil {
		d.logger.Warnf("page snapshot failed: %v", err)
		fmt.Fprintf(&b, "\nPage snapshot unavailable: %v\n", err)
		return b.String()
	}
	b.WriteString("\nPage snapshot:\n")
	b.WriteString(snap.String())
	b.WriteString("\n")
	return b.String()
}
