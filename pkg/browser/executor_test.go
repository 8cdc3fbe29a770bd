package browser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/entrhq/webtest/pkg/report"
)

func newTestExecutor(t *testing.T, page *fakePage, opts ...Option) (*Executor, *report.Reporter) {
	t.Helper()
	r, err := report.New(t.TempDir(), "executor test")
	require.NoError(t, err)
	opts = append([]Option{WithRetryDelay(0), WithTimeout(50 * time.Millisecond)}, opts...)
	e := NewExecutor(page, r, opts...)
	e.pollInterval = time.Millisecond
	return e, r
}

func lastStep(t *testing.T, r *report.Reporter) report.Step {
	t.Helper()
	steps := r.Steps()
	require.NotEmpty(t, steps)
	return steps[len(steps)-1]
}

func screenshotsFor(r *report.Reporter, step int) []report.Screenshot {
	var out []report.Screenshot
	for _, s := range r.Snapshot().Screenshots {
		if s.Step == step {
			out = append(out, s)
		}
	}
	return out
}

func TestNavigate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		page := &fakePage{}
		e, r := newTestExecutor(t, page)

		require.NoError(t, e.Navigate(context.Background(), "https://example.com", true))
		step := lastStep(t, r)
		assert.Equal(t, "Navigate to https://example.com", step.Description)
		assert.Equal(t, report.StatusSuccess, step.Status)
		assert.Equal(t, []string{"goto https://example.com idle=true"}, page.Calls())
	})

	t.Run("timeout is a warning", func(t *testing.T) {
		page := &fakePage{gotoErr: ErrTimeout}
		e, r := newTestExecutor(t, page)

		require.NoError(t, e.Navigate(context.Background(), "https://slow.example.com", false))
		step := lastStep(t, r)
		assert.Equal(t, report.StatusWarning, step.Status)
		assert.Contains(t, step.Error, "partially loaded")
		assert.Empty(t, r.Snapshot().Screenshots)
	})

	t.Run("other failure is an error with screenshot", func(t *testing.T) {
		page := &fakePage{gotoErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
		e, r := newTestExecutor(t, page)

		err := e.Navigate(context.Background(), "https://nowhere.invalid", true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
		assert.Equal(t, report.StatusError, lastStep(t, r).Status)
		assert.Len(t, screenshotsFor(r, 0), 1)
	})
}

func TestClick_LiteralSelector(t *testing.T) {
	page := &fakePage{}
	e, r := newTestExecutor(t, page)

	res, err := e.Click(context.Background(), "#submit")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, StrategyLiteral, res.Strategy)
	assert.False(t, res.Forced)
	assert.Equal(t, "Click #submit", lastStep(t, r).Description)
	assert.Equal(t, report.StatusSuccess, lastStep(t, r).Status)
}

func TestClick_LadderOrder(t *testing.T) {
	page := &fakePage{click: func(sel string, force bool) error {
		if strings.HasPrefix(sel, "[aria-label") {
			return nil
		}
		return errNoMatch
	}}
	e, r := newTestExecutor(t, page)

	res, err := e.Click(context.Background(), "Sign in")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, StrategyAriaLabel, res.Strategy)
	assert.Equal(t, []string{
		"click Sign in force=false",
		"click text=Sign in force=false",
		"click [aria-label*='Sign in'] force=false",
	}, page.Calls())

	step := lastStep(t, r)
	assert.Equal(t, report.StatusSuccess, step.Status)
	assert.Contains(t, step.Description, "via aria-label match")
}

func TestClick_ForcedFallbackSucceeds(t *testing.T) {
	page := &fakePage{click: func(sel string, force bool) error {
		if force {
			return nil
		}
		return errors.New("element is not visible")
	}}
	e, r := newTestExecutor(t, page)

	res, err := e.Click(context.Background(), ".menu")
	require.NoError(t, err)
	assert.True(t, res.Forced)
	assert.Equal(t, 6, res.Attempts)
	assert.Equal(t, "click .menu force=true", page.Calls()[5])

	step := lastStep(t, r)
	assert.Equal(t, report.StatusWarning, step.Status)
	assert.Contains(t, step.Description, "(forced)")
	assert.Contains(t, step.Error, "element is not visible")
}

func TestClick_AllPathsFail(t *testing.T) {
	page := &fakePage{click: func(sel string, force bool) error {
		if force {
			return errors.New("element detached")
		}
		return errors.New("element is not visible")
	}}
	e, r := newTestExecutor(t, page)

	res, err := e.Click(context.Background(), ".menu")
	require.Error(t, err)
	assert.Equal(t, 6, res.Attempts)

	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, "click", actionErr.Action)
	assert.Contains(t, err.Error(), "element is not visible")
	assert.Contains(t, err.Error(), "element detached")

	steps := r.Steps()
	require.Len(t, steps, 1)
	assert.Equal(t, report.StatusError, steps[0].Status)
	assert.Contains(t, steps[0].Error, "element detached")
	assert.Len(t, screenshotsFor(r, 0), 1)
}

func TestClick_FatalStopsLadder(t *testing.T) {
	page := &fakePage{
		click:         func(string, bool) error { return ErrPageClosed },
		screenshotErr: ErrPageClosed,
	}
	e, r := newTestExecutor(t, page)

	res, err := e.Click(context.Background(), "#x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPageClosed)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.Forced)

	// The screenshot failure is its own Error step.
	steps := r.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "Screenshot click_error", steps[1].Description)
	assert.Equal(t, report.StatusError, steps[1].Status)
}

func TestClick_CanceledBeforeForcedClick(t *testing.T) {
	page := &fakePage{click: func(string, bool) error { return errors.New("element is not visible") }}
	e, r := newTestExecutor(t, page)

	// Four pauses inside the ladder, the fifth precedes the forced click.
	pauses := 0
	e.sleep = func(ctx context.Context, _ time.Duration) error {
		pauses++
		if pauses == 5 {
			return context.Canceled
		}
		return nil
	}

	res, err := e.Click(context.Background(), ".menu")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Forced)
	assert.Equal(t, 5, res.Attempts)

	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Nil(t, actionErr.Forced)
	assert.Contains(t, actionErr.Cause.Error(), "element is not visible")
	assert.NotContains(t, page.Calls(), "click .menu force=true")

	steps := r.Steps()
	require.Len(t, steps, 1)
	assert.Equal(t, report.StatusError, steps[0].Status)
	assert.Len(t, screenshotsFor(r, 0), 1)
}

func TestClick_ScreenshotFailurePreservesCause(t *testing.T) {
	page := &fakePage{
		click:         func(string, bool) error { return errNoMatch },
		screenshotErr: errors.New("disk full"),
	}
	e, _ := newTestExecutor(t, page)

	_, err := e.Click(context.Background(), "#x")
	require.Error(t, err)
	var actionErr *ActionError
	assert.ErrorAs(t, err, &actionErr)
	assert.Contains(t, err.Error(), "disk full")
}

func TestFillForm(t *testing.T) {
	t.Run("text strategy", func(t *testing.T) {
		page := &fakePage{fill: func(sel, _ string) error {
			if sel == "text=Email" {
				return nil
			}
			return errNoMatch
		}}
		e, r := newTestExecutor(t, page)

		require.NoError(t, e.FillForm(context.Background(), "Email", "a@b.c"))
		step := lastStep(t, r)
		assert.Equal(t, report.StatusSuccess, step.Status)
		assert.Contains(t, step.Description, "Fill Email with a@b.c")
	})

	t.Run("exhausted ladder has no forced fallback", func(t *testing.T) {
		page := &fakePage{fill: func(string, string) error { return errNoMatch }}
		e, r := newTestExecutor(t, page)

		err := e.FillForm(context.Background(), "#email", "x")
		var actionErr *ActionError
		require.ErrorAs(t, err, &actionErr)
		assert.Nil(t, actionErr.Forced)

		fills := 0
		for _, c := range page.Calls() {
			if strings.HasPrefix(c, "fill ") {
				fills++
			}
		}
		assert.Equal(t, 5, fills)
		assert.Equal(t, report.StatusError, lastStep(t, r).Status)
		assert.Len(t, screenshotsFor(r, 0), 1)
	})
}

func TestVerifyExists(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		e, r := newTestExecutor(t, &fakePage{})
		ok, err := e.VerifyExists(context.Background(), "h1", time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "Verify h1 exists", lastStep(t, r).Description)
	})

	t.Run("not found is false without error", func(t *testing.T) {
		page := &fakePage{wait: func(string, WaitState) error { return ErrTimeout }}
		e, r := newTestExecutor(t, page)
		ok, err := e.VerifyExists(context.Background(), ".missing", 10*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)
		step := lastStep(t, r)
		assert.Equal(t, report.StatusFailed, step.Status)
		assert.Contains(t, step.Error, "not found")
		assert.Len(t, screenshotsFor(r, 0), 1)
	})

	t.Run("closed page is an error", func(t *testing.T) {
		page := &fakePage{
			wait:          func(string, WaitState) error { return ErrPageClosed },
			screenshotErr: ErrPageClosed,
		}
		e, _ := newTestExecutor(t, page)
		ok, err := e.VerifyExists(context.Background(), "h1", time.Second)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrPageClosed)
	})
}

func TestVerifyTextContains(t *testing.T) {
	page := &fakePage{body: "Welcome back, Ada!\nYour dashboard"}
	e, r := newTestExecutor(t, page)

	ok, err := e.VerifyTextContains(context.Background(), "Welcome back", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, report.StatusSuccess, lastStep(t, r).Status)

	ok, err = e.VerifyTextContains(context.Background(), "welcome back", 5*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok, "match is case sensitive")
	assert.Equal(t, report.StatusFailed, lastStep(t, r).Status)
}

func TestHover(t *testing.T) {
	t.Run("success takes auxiliary screenshot", func(t *testing.T) {
		page := &fakePage{}
		e, r := newTestExecutor(t, page)

		ok, err := e.Hover(context.Background(), "nav .products", time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, report.StatusSuccess, lastStep(t, r).Status)
		shots := r.Snapshot().Screenshots
		require.Len(t, shots, 1)
		assert.Equal(t, "hover_nav_products", shots[0].Name)
		assert.Equal(t, []string{
			"wait nav .products visible",
			"scroll nav .products",
			"eval nav .products",
			"hover nav .products",
			"eval nav .products",
			"screenshot",
		}, page.Calls())
	})

	t.Run("covered element fails before hovering", func(t *testing.T) {
		page := &fakePage{eval: func(_, expr string) (interface{}, error) {
			return map[string]interface{}{"ok": false, "reason": "covered by div#cookie-banner"}, nil
		}}
		e, r := newTestExecutor(t, page)

		ok, err := e.Hover(context.Background(), ".menu", time.Second)
		require.NoError(t, err)
		assert.False(t, ok)
		step := lastStep(t, r)
		assert.Equal(t, report.StatusFailed, step.Status)
		assert.Contains(t, step.Error, "cookie-banner")
		for _, c := range page.Calls() {
			assert.NotEqual(t, "hover .menu", c)
		}
	})

	t.Run("timeout is a warning with screenshot", func(t *testing.T) {
		page := &fakePage{wait: func(string, WaitState) error { return ErrTimeout }}
		e, r := newTestExecutor(t, page)

		ok, err := e.Hover(context.Background(), ".menu", 10*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, report.StatusWarning, lastStep(t, r).Status)
		assert.Len(t, screenshotsFor(r, 0), 1)
	})

	t.Run("not hovered after hover", func(t *testing.T) {
		page := &fakePage{eval: func(_, expr string) (interface{}, error) {
			if expr == hoverMatchScript {
				return false, nil
			}
			return map[string]interface{}{"ok": true}, nil
		}}
		e, r := newTestExecutor(t, page)

		ok, err := e.Hover(context.Background(), ".menu", time.Second)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Contains(t, lastStep(t, r).Error, ":hover")
	})
}

func TestScreenshot(t *testing.T) {
	e, r := newTestExecutor(t, &fakePage{})

	require.NoError(t, e.Navigate(context.Background(), "https://example.com", true))
	path, err := e.Screenshot(context.Background(), "landing page", true)
	require.NoError(t, err)
	assert.FileExists(t, path)

	shots := r.Snapshot().Screenshots
	require.Len(t, shots, 1)
	assert.Equal(t, "landing page", shots[0].Name)
	assert.True(t, strings.HasPrefix(shots[0].Path, "screenshots/landing_page_"))

	// Attached to its own step, not the navigation before it.
	steps := r.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, 1, shots[0].Step)
	assert.Equal(t, "Screenshot landing page", steps[shots[0].Step].Description)
}

func TestEndSession(t *testing.T) {
	var order []string
	page := &fakePage{}
	steps := []TeardownStep{
		{Name: "context", Close: func() error { order = append(order, "context"); return errors.New("context gone") }},
		{Name: "browser", Close: func() error { order = append(order, "browser"); return nil }},
		{Name: "playwright", Close: func() error { order = append(order, "playwright"); panic("driver crashed") }},
	}
	e, r := newTestExecutor(t, page, WithTeardown(steps...))

	_, err := e.EndSession(context.Background(), report.RunRunning)
	assert.ErrorIs(t, err, report.ErrRunning)
	assert.False(t, e.Ended())

	path, err := e.EndSession(context.Background(), report.RunCompleted)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.True(t, page.closed)
	assert.Equal(t, []string{"context", "browser", "playwright"}, order)
	assert.True(t, r.Completed())

	again, err := e.EndSession(context.Background(), report.RunFailed)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Len(t, order, 3, "teardown runs once")

	loaded, err := report.Load(r.RunDir())
	require.NoError(t, err)
	assert.Equal(t, report.RunCompleted, loaded.Status)

	_, err = e.Click(context.Background(), "#late")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestActionsAreTraced(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	e, _ := newTestExecutor(t, &fakePage{}, WithTracer(tp.Tracer("test")))

	require.NoError(t, e.Navigate(context.Background(), "https://example.com", true))
	_, err := e.Click(context.Background(), "#go")
	require.NoError(t, err)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"action.navigate", "action.click"}, names)
}

func TestCanceledContext(t *testing.T) {
	e, r := newTestExecutor(t, &fakePage{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Navigate(ctx, "https://example.com", true)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.Steps())
}
