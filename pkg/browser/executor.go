package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/webtest/pkg/logging"
	"github.com/entrhq/webtest/pkg/report"
)

// ErrSessionClosed is returned for actions issued after EndSession.
var ErrSessionClosed = errors.New("browser session already ended")

// DefaultRetryDelay is the pause between failed ladder attempts.
const DefaultRetryDelay = time.Second

const tracerName = "github.com/entrhq/webtest/pkg/browser"

// ClickResult describes which path made a click succeed.
type ClickResult struct {
	Strategy Strategy
	Attempts int
	Forced   bool
}

// Executor runs actions against one page and records them in one report.
// Actions are serialized.
type Executor struct {
	mu       sync.Mutex
	page     Page
	reporter *report.Reporter
	teardown []TeardownStep
	logger   *logging.Logger
	tracer   trace.Tracer
	sleep    sleepFunc

	timeout      time.Duration
	retryDelay   time.Duration
	pollInterval time.Duration

	ended   bool
	endPath string
	endErr  error
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout sets the default interaction timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRetryDelay sets the pause between ladder attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d >= 0 {
			e.retryDelay = d
		}
	}
}

// WithTeardown registers resources released by EndSession after the page,
// in order.
func WithTeardown(steps ...TeardownStep) Option {
	return func(e *Executor) {
		e.teardown = append(e.teardown, steps...)
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = t
	}
}

// NewExecutor creates an executor for page, recording into r.
func NewExecutor(page Page, r *report.Reporter, opts ...Option) *Executor {
	e := &Executor{
		page:         page,
		reporter:     r,
		logger:       logging.Nop(),
		tracer:       otel.Tracer(tracerName),
		sleep:        sleepContext,
		timeout:      DefaultTimeout,
		retryDelay:   DefaultRetryDelay,
		pollInterval: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewSessionExecutor creates an executor that owns s and tears it down on
// EndSession.
func NewSessionExecutor(s *Session, r *report.Reporter, opts ...Option) *Executor {
	opts = append([]Option{WithTeardown(s.Teardown()...)}, opts...)
	return NewExecutor(s.Page(), r, opts...)
}

// Reporter returns the report the executor records into.
func (e *Executor) Reporter() *report.Reporter {
	return e.reporter
}

func (e *Executor) begin(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, error) {
	e.mu.Lock()
	ctx, span := e.tracer.Start(ctx, "action."+name, trace.WithAttributes(attrs...))
	if e.ended {
		return ctx, span, ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return ctx, span, err
	}
	return ctx, span, nil
}

func (e *Executor) finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	e.mu.Unlock()
}

// Navigate loads url. A timeout is recorded as a Warning and is not an
// error, since the page may have partially loaded.
func (e *Executor) Navigate(ctx context.Context, url string, waitForNetworkIdle bool) (err error) {
	ctx, span, err := e.begin(ctx, "navigate", attribute.String("url", url))
	defer func() { e.finish(span, err) }()
	if err != nil {
		return err
	}

	desc := "Navigate to " + url
	navErr := e.page.Goto(url, waitForNetworkIdle, e.timeout)
	switch {
	case navErr == nil:
		e.reporter.AddStep(desc, report.StatusSuccess, nil)
		return nil
	case errors.Is(navErr, ErrTimeout):
		e.reporter.AddStep(desc, report.StatusWarning, fmt.Errorf("navigation timed out, page may be partially loaded: %w", navErr))
		return nil
	}
	e.reporter.AddStep(desc, report.StatusError, navErr)
	return e.captureFailure("navigation_error", fmt.Errorf("navigate to %s: %w", url, navErr))
}

// Click clicks target using the selector ladder, then one forced click on the
// literal selector if every strategy failed.
func (e *Executor) Click(ctx context.Context, target string) (res ClickResult, err error) {
	ctx, span, err := e.begin(ctx, "click", attribute.String("target", target))
	defer func() {
		span.SetAttributes(attribute.Int("attempts", res.Attempts), attribute.Bool("forced", res.Forced))
		e.finish(span, err)
	}()
	if err != nil {
		return res, err
	}

	desc := "Click " + target
	attempts := ladder(ctx, Strategies(target), e.retryDelay, e.sleep, func(sel string) error {
		return e.page.Click(sel, false, e.timeout)
	})
	res.Attempts = len(attempts)
	last := attempts[len(attempts)-1]

	switch last.Outcome {
	case OutcomeOK:
		res.Strategy = last.Selector.Strategy
		if res.Strategy != StrategyLiteral {
			desc = fmt.Sprintf("%s (via %s)", desc, res.Strategy)
		}
		e.reporter.AddStep(desc, report.StatusSuccess, nil)
		return res, nil
	case OutcomeFatal:
		e.reporter.AddStep(desc, report.StatusError, last.Err)
		return res, e.captureFailure("click_error", &ActionError{Action: "click", Target: target, Cause: last.Err})
	}

	if err := e.sleep(ctx, e.retryDelay); err != nil {
		// Canceled before the forced click ran.
		canceled := errors.Join(&ActionError{Action: "click", Target: target, Cause: last.Err}, err)
		e.reporter.AddStep(desc, report.StatusError, canceled)
		return res, e.captureFailure("click_error", canceled)
	}
	res.Attempts++
	res.Forced = true
	forcedErr := e.page.Click(target, true, e.timeout)
	if forcedErr == nil {
		res.Strategy = StrategyLiteral
		e.reporter.AddStep(desc+" (forced)", report.StatusWarning,
			fmt.Errorf("normal click failed, forced click succeeded: %w", last.Err))
		return res, nil
	}

	actionErr := &ActionError{Action: "click", Target: target, Cause: last.Err, Forced: forcedErr}
	e.reporter.AddStep(desc, report.StatusError, actionErr)
	return res, e.captureFailure("click_error", actionErr)
}

// FillForm types value into target using the selector ladder. There is no
// forced fallback.
func (e *Executor) FillForm(ctx context.Context, target, value string) (err error) {
	ctx, span, err := e.begin(ctx, "fill", attribute.String("target", target))
	defer func() { e.finish(span, err) }()
	if err != nil {
		return err
	}

	desc := fmt.Sprintf("Fill %s with %s", target, value)
	attempts := ladder(ctx, Strategies(target), e.retryDelay, e.sleep, func(sel string) error {
		return e.page.Fill(sel, value, e.timeout)
	})
	last := attempts[len(attempts)-1]
	if last.Outcome == OutcomeOK {
		if last.Selector.Strategy != StrategyLiteral {
			desc = fmt.Sprintf("%s (via %s)", desc, last.Selector.Strategy)
		}
		e.reporter.AddStep(desc, report.StatusSuccess, nil)
		return nil
	}

	actionErr := &ActionError{Action: "fill", Target: target, Cause: last.Err}
	e.reporter.AddStep(desc, report.StatusError, actionErr)
	return e.captureFailure("fill_error", actionErr)
}

// VerifyExists reports whether target appears within timeout. Only page
// infrastructure failures are returned as errors.
func (e *Executor) VerifyExists(ctx context.Context, target string, timeout time.Duration) (ok bool, err error) {
	ctx, span, err := e.begin(ctx, "verify_exists", attribute.String("target", target))
	defer func() {
		span.SetAttributes(attribute.Bool("found", ok))
		e.finish(span, err)
	}()
	if err != nil {
		return false, err
	}
	if timeout <= 0 {
		timeout = e.timeout
	}

	desc := fmt.Sprintf("Verify %s exists", target)
	waitErr := e.page.WaitForSelector(target, WaitAttached, timeout)
	switch classify(waitErr) {
	case OutcomeOK:
		e.reporter.AddStep(desc, report.StatusSuccess, nil)
		return true, nil
	case OutcomeFatal:
		e.reporter.AddStep(desc, report.StatusError, waitErr)
		return false, e.captureFailure("verification_error", waitErr)
	}
	cause := waitErr
	if errors.Is(waitErr, ErrTimeout) {
		cause = fmt.Errorf("element not found within %s", timeout)
	}
	e.reporter.AddStep(desc, report.StatusFailed, cause)
	e.captureQuietly("verification_error")
	return false, nil
}

// VerifyTextContains reports whether the rendered body text contains text
// before timeout elapses.
func (e *Executor) VerifyTextContains(ctx context.Context, text string, timeout time.Duration) (ok bool, err error) {
	ctx, span, err := e.begin(ctx, "verify_text")
	defer func() {
		span.SetAttributes(attribute.Bool("found", ok))
		e.finish(span, err)
	}()
	if err != nil {
		return false, err
	}
	if timeout <= 0 {
		timeout = e.timeout
	}

	desc := fmt.Sprintf("Verify text '%s' exists", text)
	deadline := time.Now().Add(timeout)
	for {
		body, readErr := e.page.InnerText("body", timeout)
		if readErr == nil && strings.Contains(body, text) {
			e.reporter.AddStep(desc, report.StatusSuccess, nil)
			return true, nil
		}
		if classify(readErr) == OutcomeFatal {
			e.reporter.AddStep(desc, report.StatusError, readErr)
			return false, e.captureFailure("text_verification_error", readErr)
		}
		if !time.Now().Before(deadline) {
			break
		}
		if err := e.sleep(ctx, e.pollInterval); err != nil {
			e.reporter.AddStep(desc, report.StatusError, err)
			return false, err
		}
	}
	e.reporter.AddStep(desc, report.StatusFailed, fmt.Errorf("text not found within %s", timeout))
	e.captureQuietly("text_verification_error")
	return false, nil
}

// Screenshot captures the page into the run's screenshot directory and
// registers it with the report.
func (e *Executor) Screenshot(ctx context.Context, name string, fullPage bool) (path string, err error) {
	_, span, err := e.begin(ctx, "screenshot", attribute.String("name", name))
	defer func() { e.finish(span, err) }()
	if err != nil {
		return "", err
	}
	path, err = e.capture(name, fullPage)
	if err != nil {
		e.reporter.AddStep("Screenshot "+name, report.StatusError, err)
		return "", err
	}
	// The image belongs to its own step, so record the step first.
	e.reporter.AddStep("Screenshot "+name, report.StatusSuccess, nil)
	e.reporter.AddScreenshot(path, name)
	return path, nil
}

// capture writes the page image without registering it. It must be called
// with mu held.
func (e *Executor) capture(label string, fullPage bool) (string, error) {
	path := e.reporter.ScreenshotPath(label)
	if err := e.page.Screenshot(path, fullPage); err != nil {
		return "", fmt.Errorf("screenshot %s: %w", label, err)
	}
	return path, nil
}

// screenshot captures and registers an image against the latest step. It
// must be called with mu held.
func (e *Executor) screenshot(label string, fullPage bool) (string, error) {
	path, err := e.capture(label, fullPage)
	if err != nil {
		return "", err
	}
	e.reporter.AddScreenshot(path, label)
	return path, nil
}

// captureFailure takes a best-effort screenshot after a failed step. A
// screenshot failure is recorded as its own Error step and joined to cause.
func (e *Executor) captureFailure(label string, cause error) error {
	if _, err := e.screenshot(label, false); err != nil {
		e.logger.Warnf("failure screenshot %s: %v", label, err)
		e.reporter.AddStep("Screenshot "+label, report.StatusError, err)
		return errors.Join(cause, err)
	}
	return cause
}

func (e *Executor) captureQuietly(label string) {
	if _, err := e.screenshot(label, false); err != nil {
		e.logger.Warnf("failure screenshot %s: %v", label, err)
		e.reporter.AddStep("Screenshot "+label, report.StatusError, err)
	}
}

// EndSession closes the page and every teardown resource, then finalizes
// the report with status. Only the first call has an effect; later calls
// return the same path and error.
func (e *Executor) EndSession(ctx context.Context, status report.RunStatus) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return e.endPath, e.endErr
	}
	if status == report.RunRunning {
		return "", report.ErrRunning
	}
	_, span := e.tracer.Start(ctx, "action.end_session", trace.WithAttributes(attribute.String("status", string(status))))
	defer span.End()

	steps := append([]TeardownStep{{Name: "page", Close: e.page.Close}}, e.teardown...)
	if err := RunTeardown(steps); err != nil {
		span.RecordError(err)
		e.logger.Warnf("browser teardown: %v", err)
	}

	e.ended = true
	e.endPath, e.endErr = e.reporter.Complete(status)
	if e.endErr != nil {
		span.RecordError(e.endErr)
		span.SetStatus(codes.Error, e.endErr.Error())
	}
	return e.endPath, e.endErr
}

// RunStatus is the status the report holds, which after EndSession is the
// one it was finalized with.
func (e *Executor) RunStatus() report.RunStatus {
	return e.reporter.Status()
}

// Ended reports whether EndSession has run.
func (e *Executor) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}
