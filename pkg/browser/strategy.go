package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Strategy is one way of deriving a selector from a target description.
type Strategy int

const (
	StrategyLiteral Strategy = iota
	StrategyText
	StrategyAriaLabel
	StrategyTitle
	StrategyTestID
)

var strategyNames = [...]string{
	StrategyLiteral:   "literal selector",
	StrategyText:      "text match",
	StrategyAriaLabel: "aria-label match",
	StrategyTitle:     "title match",
	StrategyTestID:    "test id match",
}

func (s Strategy) String() string {
	if s < StrategyLiteral || s > StrategyTestID {
		return fmt.Sprintf("strategy(%d)", int(s))
	}
	return strategyNames[s]
}

// Selector is a concrete selector produced by a strategy.
type Selector struct {
	Strategy Strategy
	Value    string
}

// Strategies derives the selector ladder for target, in the order they are
// tried.
func Strategies(target string) []Selector {
	quoted := strings.ReplaceAll(target, `'`, `\'`)
	return []Selector{
		{StrategyLiteral, target},
		{StrategyText, "text=" + target},
		{StrategyAriaLabel, fmt.Sprintf("[aria-label*='%s']", quoted)},
		{StrategyTitle, fmt.Sprintf("[title*='%s']", quoted)},
		{StrategyTestID, fmt.Sprintf("[data-testid*='%s']", quoted)},
	}
}

// Outcome classifies a single attempt.
type Outcome int

const (
	// OutcomeOK means the primitive succeeded.
	OutcomeOK Outcome = iota
	// OutcomeRecoverable means the next strategy may still work.
	OutcomeRecoverable
	// OutcomeFatal means the page or context is gone; no strategy can work.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRecoverable:
		return "recoverable"
	case OutcomeFatal:
		return "fatal"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Attempt is the result of trying one selector.
type Attempt struct {
	Err      error
	Selector Selector
	Outcome  Outcome
}

func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrPageClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return OutcomeFatal
	}
	return OutcomeRecoverable
}

// ladder tries fn with each selector in order and returns every attempt
// made. It stops at the first success or fatal outcome and waits delay
// between failed attempts.
func ladder(ctx context.Context, selectors []Selector, delay time.Duration, sleep sleepFunc, fn func(string) error) []Attempt {
	attempts := make([]Attempt, 0, len(selectors))
	for i, sel := range selectors {
		if i > 0 {
			if err := sleep(ctx, delay); err != nil {
				attempts = append(attempts, Attempt{Selector: sel, Outcome: OutcomeFatal, Err: err})
				return attempts
			}
		}
		err := fn(sel.Value)
		a := Attempt{Selector: sel, Outcome: classify(err), Err: err}
		attempts = append(attempts, a)
		if a.Outcome != OutcomeRecoverable {
			return attempts
		}
	}
	return attempts
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ActionError reports an action that could not be completed by any path.
type ActionError struct {
	// Forced is the cause of the forced fallback, when one was tried.
	Forced error
	// Cause is the last failure of the normal path.
	Cause  error
	Action string
	Target string
}

func (e *ActionError) Error() string {
	if e.Forced != nil {
		return fmt.Sprintf("%s %s failed: %v; forced fallback failed: %v", e.Action, e.Target, e.Cause, e.Forced)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Action, e.Target, e.Cause)
}

// Unwrap exposes both causes to errors.Is and errors.As.
func (e *ActionError) Unwrap() []error {
	var errs []error
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	if e.Forced != nil {
		errs = append(errs, e.Forced)
	}
	return errs
}
