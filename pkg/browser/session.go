package browser

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Default session settings.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultSlowMo         = 500 * time.Millisecond
	DefaultTimeout        = 10 * time.Second
)

// SessionOptions configures a new browser session.
type SessionOptions struct {
	// Headless controls whether the browser runs without a visible window.
	Headless bool

	// SlowMo delays every Playwright operation.
	SlowMo time.Duration

	// Timeout is the page default for operations without an explicit timeout.
	Timeout time.Duration

	ViewportWidth  int
	ViewportHeight int

	// Output receives driver logs; nil discards them.
	Output io.Writer
}

func (o *SessionOptions) applyDefaults() {
	if o.ViewportWidth <= 0 {
		o.ViewportWidth = DefaultViewportWidth
	}
	if o.ViewportHeight <= 0 {
		o.ViewportHeight = DefaultViewportHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.SlowMo < 0 {
		o.SlowMo = 0
	}
	if o.Output == nil {
		o.Output = io.Discard
	}
}

// Session owns the Playwright runtime, browser, context and page for one run.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	closeOnce sync.Once
	closeErr  error
}

// Install downloads the Playwright driver and Chromium.
func Install(output io.Writer) error {
	if output == nil {
		output = io.Discard
	}
	err := playwright.Install(&playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  output != io.Discard,
		Stdout:   output,
		Stderr:   output,
	})
	if err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}
	return nil
}

// Launch starts Playwright and opens a Chromium page. The driver must have
// been installed (see Install).
func Launch(opts SessionOptions) (*Session, error) {
	opts.applyDefaults()

	pw, err := playwright.Run(&playwright.RunOptions{
		Verbose: false,
		Stdout:  opts.Output,
		Stderr:  opts.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	s := &Session{pw: pw}

	s.browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		SlowMo:   playwright.Float(float64(opts.SlowMo.Milliseconds())),
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	s.context, err = s.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	s.page, err = s.context.NewPage()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	s.page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))

	return s, nil
}

// Page returns the session page.
func (s *Session) Page() Page {
	return NewPlaywrightPage(s.page)
}

// TeardownStep is one guarded step of releasing browser resources.
type TeardownStep struct {
	Name  string
	Close func() error
}

// Teardown returns the steps that release the context, the browser and the
// Playwright runtime, in that order. The page is closed separately by its
// owner.
func (s *Session) Teardown() []TeardownStep {
	var steps []TeardownStep
	if s.context != nil {
		steps = append(steps, TeardownStep{Name: "context", Close: func() error { return s.context.Close() }})
	}
	if s.browser != nil {
		steps = append(steps, TeardownStep{Name: "browser", Close: func() error { return s.browser.Close() }})
	}
	if s.pw != nil {
		steps = append(steps, TeardownStep{Name: "playwright", Close: s.pw.Stop})
	}
	return steps
}

// Close tears down page, context, browser and the Playwright runtime in that
// order. Every step runs even if an earlier one fails; the failures are
// joined. Later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		steps := s.Teardown()
		if s.page != nil {
			page := NewPlaywrightPage(s.page)
			steps = append([]TeardownStep{{Name: "page", Close: page.Close}}, steps...)
		}
		s.closeErr = RunTeardown(steps)
	})
	return s.closeErr
}

// RunTeardown runs every step, recovering panics, and joins the failures.
func RunTeardown(steps []TeardownStep) error {
	var errs []error
	for _, step := range steps {
		if err := runStep(step); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", step.Name, err))
		}
	}
	return errors.Join(errs...)
}

func runStep(step TeardownStep) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step.Close()
}
