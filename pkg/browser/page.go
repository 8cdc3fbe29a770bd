package browser

import (
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

var (
	// ErrTimeout marks a primitive that did not finish within its timeout.
	ErrTimeout = errors.New("timeout")
	// ErrPageClosed marks an operation on a page that is no longer usable.
	ErrPageClosed = errors.New("page closed")
)

// WaitState is the element state WaitForSelector waits for.
type WaitState string

const (
	WaitAttached WaitState = "attached"
	WaitVisible  WaitState = "visible"
)

// Page is the page capability the executor drives. Implementations report
// timeouts wrapping ErrTimeout and dead pages wrapping ErrPageClosed.
type Page interface {
	Goto(url string, waitForNetworkIdle bool, timeout time.Duration) error
	Click(selector string, force bool, timeout time.Duration) error
	Fill(selector, value string, timeout time.Duration) error
	Hover(selector string, timeout time.Duration) error
	WaitForSelector(selector string, state WaitState, timeout time.Duration) error
	ScrollIntoView(selector string, timeout time.Duration) error
	// EvaluateElement calls the JavaScript function expression with the
	// first element matching selector.
	EvaluateElement(selector, expression string, timeout time.Duration) (interface{}, error)
	Screenshot(path string, fullPage bool) error
	InnerText(selector string, timeout time.Duration) (string, error)
	Content() (string, error)
	Title() (string, error)
	URL() string
	Close() error
}

// playwrightPage adapts playwright.Page to Page.
type playwrightPage struct {
	page playwright.Page
}

// NewPlaywrightPage wraps a Playwright page.
func NewPlaywrightPage(page playwright.Page) Page {
	return &playwrightPage{page: page}
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func (p *playwrightPage) Goto(url string, waitForNetworkIdle bool, timeout time.Duration) error {
	waitUntil := playwright.WaitUntilStateCommit
	if waitForNetworkIdle {
		waitUntil = playwright.WaitUntilStateNetworkidle
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntil,
		Timeout:   ms(timeout),
	})
	return p.classify(err)
}

func (p *playwrightPage) Click(selector string, force bool, timeout time.Duration) error {
	return p.classify(p.page.Click(selector, playwright.PageClickOptions{
		Force:   playwright.Bool(force),
		Timeout: ms(timeout),
	}))
}

func (p *playwrightPage) Fill(selector, value string, timeout time.Duration) error {
	return p.classify(p.page.Fill(selector, value, playwright.PageFillOptions{
		Timeout: ms(timeout),
	}))
}

func (p *playwrightPage) Hover(selector string, timeout time.Duration) error {
	return p.classify(p.page.Hover(selector, playwright.PageHoverOptions{
		Timeout: ms(timeout),
	}))
}

func (p *playwrightPage) WaitForSelector(selector string, state WaitState, timeout time.Duration) error {
	s := playwright.WaitForSelectorStateVisible
	if state == WaitAttached {
		s = playwright.WaitForSelectorStateAttached
	}
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   s,
		Timeout: ms(timeout),
	})
	return p.classify(err)
}

func (p *playwrightPage) ScrollIntoView(selector string, timeout time.Duration) error {
	return p.classify(p.page.Locator(selector).First().ScrollIntoViewIfNeeded(
		playwright.LocatorScrollIntoViewIfNeededOptions{Timeout: ms(timeout)},
	))
}

func (p *playwrightPage) EvaluateElement(selector, expression string, timeout time.Duration) (interface{}, error) {
	v, err := p.page.Locator(selector).First().Evaluate(expression, nil, playwright.LocatorEvaluateOptions{
		Timeout: ms(timeout),
	})
	return v, p.classify(err)
}

func (p *playwrightPage) Screenshot(path string, fullPage bool) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(fullPage),
	})
	return p.classify(err)
}

func (p *playwrightPage) InnerText(selector string, timeout time.Duration) (string, error) {
	text, err := p.page.InnerText(selector, playwright.PageInnerTextOptions{
		Timeout: ms(timeout),
	})
	return text, p.classify(err)
}

func (p *playwrightPage) Content() (string, error) {
	html, err := p.page.Content()
	return html, p.classify(err)
}

func (p *playwrightPage) Title() (string, error) {
	title, err := p.page.Title()
	return title, p.classify(err)
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Close() error {
	if p.page.IsClosed() {
		return nil
	}
	return p.page.Close()
}

// classify maps Playwright failures onto the package sentinels.
func (p *playwrightPage) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, playwright.ErrTimeout):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, playwright.ErrTargetClosed), p.page.IsClosed():
		return fmt.Errorf("%w: %w", ErrPageClosed, err)
	}
	return err
}
