package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategies(t *testing.T) {
	got := Strategies("Don't click")
	require.Len(t, got, 5)
	assert.Equal(t, Selector{StrategyLiteral, "Don't click"}, got[0])
	assert.Equal(t, Selector{StrategyText, "text=Don't click"}, got[1])
	assert.Equal(t, Selector{StrategyAriaLabel, `[aria-label*='Don\'t click']`}, got[2])
	assert.Equal(t, Selector{StrategyTitle, `[title*='Don\'t click']`}, got[3])
	assert.Equal(t, Selector{StrategyTestID, `[data-testid*='Don\'t click']`}, got[4])
}

func TestLadder(t *testing.T) {
	var slept []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	t.Run("stops at first success", func(t *testing.T) {
		slept = nil
		calls := 0
		attempts := ladder(context.Background(), Strategies("x"), time.Second, sleep, func(string) error {
			calls++
			if calls == 2 {
				return nil
			}
			return errNoMatch
		})
		require.Len(t, attempts, 2)
		assert.Equal(t, OutcomeRecoverable, attempts[0].Outcome)
		assert.Equal(t, OutcomeOK, attempts[1].Outcome)
		assert.Equal(t, []time.Duration{time.Second}, slept)
	})

	t.Run("fatal stops immediately", func(t *testing.T) {
		slept = nil
		attempts := ladder(context.Background(), Strategies("x"), time.Second, sleep, func(string) error {
			return ErrPageClosed
		})
		require.Len(t, attempts, 1)
		assert.Equal(t, OutcomeFatal, attempts[0].Outcome)
		assert.Empty(t, slept)
	})

	t.Run("all recoverable", func(t *testing.T) {
		slept = nil
		attempts := ladder(context.Background(), Strategies("x"), time.Second, sleep, func(string) error {
			return errNoMatch
		})
		assert.Len(t, attempts, 5)
		assert.Len(t, slept, 4)
	})

	t.Run("cancelled between attempts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		attempts := ladder(ctx, Strategies("x"), time.Hour, sleepContext, func(string) error {
			cancel()
			return errNoMatch
		})
		require.Len(t, attempts, 2)
		assert.Equal(t, OutcomeFatal, attempts[1].Outcome)
		assert.ErrorIs(t, attempts[1].Err, context.Canceled)
	})
}

func TestActionError(t *testing.T) {
	cause := errors.New("normal")
	forced := errors.New("forced")
	err := &ActionError{Action: "click", Target: "#a", Cause: cause, Forced: forced}

	assert.Equal(t, "click #a failed: normal; forced fallback failed: forced", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, forced)

	assert.Equal(t, "fill #b failed: normal", (&ActionError{Action: "fill", Target: "#b", Cause: cause}).Error())
}

func TestRunTeardown(t *testing.T) {
	var ran []string
	err := RunTeardown([]TeardownStep{
		{Name: "a", Close: func() error { ran = append(ran, "a"); return errors.New("boom") }},
		{Name: "b", Close: func() error { ran = append(ran, "b"); panic("oops") }},
		{Name: "c", Close: func() error { ran = append(ran, "c"); return nil }},
	})
	assert.Equal(t, []string{"a", "b", "c"}, ran)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close a: boom")
	assert.Contains(t, err.Error(), "close b: panic: oops")
}
