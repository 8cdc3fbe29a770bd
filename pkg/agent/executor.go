package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/webtest/pkg/browser"
	"github.com/entrhq/webtest/pkg/conversation"
	"github.com/entrhq/webtest/pkg/logging"
	"github.com/entrhq/webtest/pkg/plan"
	"github.com/entrhq/webtest/pkg/report"
	"github.com/entrhq/webtest/pkg/types"
)

// Browser is the set of browser actions the executor role drives.
// *browser.Executor implements it.
type Browser interface {
	Navigate(ctx context.Context, url string, waitForNetworkIdle bool) error
	Click(ctx context.Context, target string) (browser.ClickResult, error)
	FillForm(ctx context.Context, target, value string) error
	Hover(ctx context.Context, target string, timeout time.Duration) (bool, error)
	VerifyExists(ctx context.Context, target string, timeout time.Duration) (bool, error)
	VerifyTextContains(ctx context.Context, text string, timeout time.Duration) (bool, error)
	Screenshot(ctx context.Context, name string, fullPage bool) (string, error)
	EndSession(ctx context.Context, status report.RunStatus) (string, error)
}

// Executor runs the approved plan action by action.
type Executor struct {
	browser Browser
	logger  *logging.Logger
	timeout time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithActionTimeout sets the default timeout for hover and verify actions
// that carry no timeout of their own.
func WithActionTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *logging.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates the executor role.
func NewExecutor(b Browser, opts ...ExecutorOption) *Executor {
	e := &Executor{
		browser: b,
		logger:  logging.Nop(),
		timeout: browser.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Role returns types.RoleExecutor.
func (e *Executor) Role() types.Role {
	return types.RoleExecutor
}

// FailureMessage formats the executor's report of an unrecoverable action.
func FailureMessage(action string, cause error) string {
	return fmt.Sprintf("Execution failed: %s: Error: %v", action, cause)
}

// Act runs the most recent tester plan. It stops at the first unrecoverable
// error. A plan that ends with end_session finalizes the report and yields
// the terminal announcement.
func (e *Executor) Act(ctx context.Context, state *conversation.State) (*types.Message, error) {
	proposal := state.LastFrom(types.RoleTester)
	if proposal == nil {
		return types.NewMessage(types.RoleExecutor, FailureMessage("plan", plan.ErrNoPlan)), nil
	}
	p, err := plan.Extract(proposal.Content)
	if err != nil {
		return types.NewMessage(types.RoleExecutor, FailureMessage("plan", err)), nil
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Running %d actions.\n", len(p.Actions))

	for i, a := range p.Actions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if a.Type == plan.ActionEndSession {
			return e.end(ctx, &out, a)
		}

		note, err := e.run(ctx, a)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			e.logger.Warnf("action %d (%s) failed: %v", i+1, a.Describe(), err)
			out.WriteString(FailureMessage(a.Describe(), err))
			return types.NewMessage(types.RoleExecutor, out.String()), nil
		}
		fmt.Fprintf(&out, "%d. %s: %s\n", i+1, a.Describe(), note)
	}

	out.WriteString("Plan finished without end_session. Send the next plan, or end the session when the test is complete.")
	return types.NewMessage(types.RoleExecutor, out.String()), nil
}

func (e *Executor) end(ctx context.Context, out *strings.Builder, a plan.Action) (*types.Message, error) {
	status := report.RunCompleted
	if a.Status != "" {
		parsed, err := report.ParseRunStatus(a.Status)
		if err != nil {
			out.WriteString(FailureMessage(a.Describe(), err))
			return types.NewMessage(types.RoleExecutor, out.String()), nil
		}
		status = parsed
	}

	path, err := e.browser.EndSession(ctx, status)
	if err != nil {
		out.WriteString(FailureMessage(a.Describe(), err))
		return types.NewMessage(types.RoleExecutor, out.String()), nil
	}

	out.WriteString(report.Announcement(path))
	msg := types.NewMessage(types.RoleExecutor, out.String())
	msg.Done = true
	return msg, nil
}

// run performs one action. The returned note describes a recoverable
// outcome; the error is set only for unrecoverable ones.
func (e *Executor) run(ctx context.Context, a plan.Action) (string, error) {
	switch a.Type {
	case plan.ActionNavigate:
		return "ok", e.browser.Navigate(ctx, a.URL, a.NetworkIdle())

	case plan.ActionClick:
		res, err := e.browser.Click(ctx, a.Target)
		if err != nil {
			return "", err
		}
		switch {
		case res.Forced:
			return "ok (forced click)", nil
		case res.Strategy != browser.StrategyLiteral:
			return fmt.Sprintf("ok (via %s)", res.Strategy), nil
		}
		return "ok", nil

	case plan.ActionFill:
		return "ok", e.browser.FillForm(ctx, a.Target, a.Value)

	case plan.ActionHover:
		ok, err := e.browser.Hover(ctx, a.Target, a.Timeout(e.timeout))
		return outcome(ok, "hover did not take effect"), err

	case plan.ActionVerifyExists:
		ok, err := e.browser.VerifyExists(ctx, a.Target, a.Timeout(e.timeout))
		return outcome(ok, "verification failed, no matching element"), err

	case plan.ActionVerifyText:
		ok, err := e.browser.VerifyTextContains(ctx, a.Text, a.Timeout(e.timeout))
		return outcome(ok, "verification failed, text is not on the page"), err

	case plan.ActionScreenshot:
		path, err := e.browser.Screenshot(ctx, a.Name, a.FullPage)
		if err != nil {
			return "", err
		}
		return "saved " + path, nil
	}
	return "", fmt.Errorf("unsupported action type %q", a.Type)
}

func outcome(ok bool, failure string) string {
	if ok {
		return "ok"
	}
	return failure
}
