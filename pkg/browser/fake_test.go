package browser

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// fakePage is a scripted Page. Unset hooks succeed.
type fakePage struct {
	mu    sync.Mutex
	calls []string

	gotoErr       error
	click         func(selector string, force bool) error
	fill          func(selector, value string) error
	wait          func(selector string, state WaitState) error
	scrollErr     error
	hoverErr      error
	eval          func(selector, expression string) (interface{}, error)
	body          string
	bodyErr       error
	content       string
	screenshotErr error
	closeErr      error
	url           string
	closed        bool
}

func (p *fakePage) record(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) Goto(url string, idle bool, timeout time.Duration) error {
	p.record("goto %s idle=%v", url, idle)
	if p.gotoErr == nil {
		p.url = url
	}
	return p.gotoErr
}

func (p *fakePage) Click(selector string, force bool, timeout time.Duration) error {
	p.record("click %s force=%v", selector, force)
	if p.click == nil {
		return nil
	}
	return p.click(selector, force)
}

func (p *fakePage) Fill(selector, value string, timeout time.Duration) error {
	p.record("fill %s", selector)
	if p.fill == nil {
		return nil
	}
	return p.fill(selector, value)
}

func (p *fakePage) Hover(selector string, timeout time.Duration) error {
	p.record("hover %s", selector)
	return p.hoverErr
}

func (p *fakePage) WaitForSelector(selector string, state WaitState, timeout time.Duration) error {
	p.record("wait %s %s", selector, state)
	if p.wait == nil {
		return nil
	}
	return p.wait(selector, state)
}

func (p *fakePage) ScrollIntoView(selector string, timeout time.Duration) error {
	p.record("scroll %s", selector)
	return p.scrollErr
}

func (p *fakePage) EvaluateElement(selector, expression string, timeout time.Duration) (interface{}, error) {
	p.record("eval %s", selector)
	if p.eval != nil {
		return p.eval(selector, expression)
	}
	if expression == hoverMatchScript {
		return true, nil
	}
	return map[string]interface{}{"ok": true, "reason": ""}, nil
}

func (p *fakePage) Screenshot(path string, fullPage bool) error {
	p.record("screenshot")
	if p.screenshotErr != nil {
		return p.screenshotErr
	}
	return os.WriteFile(path, []byte("png"), 0o644)
}

func (p *fakePage) InnerText(selector string, timeout time.Duration) (string, error) {
	p.record("innertext %s", selector)
	return p.body, p.bodyErr
}

func (p *fakePage) Content() (string, error) { return p.content, nil }

func (p *fakePage) Title() (string, error) { return "", nil }

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Close() error {
	p.record("close page")
	p.closed = true
	return p.closeErr
}

var errNoMatch = errors.New("no element matches selector")
