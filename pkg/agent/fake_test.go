package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/webtest/pkg/browser"
	"github.com/entrhq/webtest/pkg/llm"
	"github.com/entrhq/webtest/pkg/report"
	"github.com/entrhq/webtest/pkg/types"
)

// scriptedProvider returns its replies in order and records every prompt.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []*llm.Completion
	err     error
	prompts [][]*types.ChatMessage
}

func newScriptedProvider(replies ...string) *scriptedProvider {
	p := &scriptedProvider{}
	for _, r := range replies {
		p.replies = append(p.replies, &llm.Completion{
			Content: r,
			Usage:   &types.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
		})
	}
	return p
}

func (p *scriptedProvider) Complete(ctx context.Context, messages []*types.ChatMessage, opts ...llm.CallOption) (*llm.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, messages)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.replies) == 0 {
		return nil, errors.New("no scripted reply left")
	}
	c := p.replies[0]
	p.replies = p.replies[1:]
	return c, nil
}

func (p *scriptedProvider) StreamCompletion(ctx context.Context, messages []*types.ChatMessage, opts ...llm.CallOption) (<-chan *llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (p *scriptedProvider) Model() string { return "scripted" }

func (p *scriptedProvider) lastPrompt() []*types.ChatMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prompts) == 0 {
		return nil
	}
	return p.prompts[len(p.prompts)-1]
}

// fakeBrowser records calls and fails the actions named in failures.
type fakeBrowser struct {
	calls      []string
	failures   map[string]error
	negatives  map[string]bool
	click      browser.ClickResult
	endStatus  report.RunStatus
	reportPath string
	snapshot   *browser.PageSnapshot
	snapErr    error
	reporter   *report.Reporter
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		failures:   map[string]error{},
		negatives:  map[string]bool{},
		reportPath: "/tmp/reports/run/report.md",
	}
}

func (f *fakeBrowser) record(call string) error {
	f.calls = append(f.calls, call)
	return f.failures[call]
}

func (f *fakeBrowser) Navigate(ctx context.Context, url string, idle bool) error {
	return f.record("navigate " + url)
}

func (f *fakeBrowser) Click(ctx context.Context, target string) (browser.ClickResult, error) {
	return f.click, f.record("click " + target)
}

func (f *fakeBrowser) FillForm(ctx context.Context, target, value string) error {
	return f.record(fmt.Sprintf("fill %s=%s", target, value))
}

func (f *fakeBrowser) Hover(ctx context.Context, target string, timeout time.Duration) (bool, error) {
	call := "hover " + target
	return !f.negatives[call], f.record(call)
}

func (f *fakeBrowser) VerifyExists(ctx context.Context, target string, timeout time.Duration) (bool, error) {
	call := fmt.Sprintf("exists %s %s", target, timeout)
	return !f.negatives[call], f.record(call)
}

func (f *fakeBrowser) VerifyTextContains(ctx context.Context, text string, timeout time.Duration) (bool, error) {
	call := "text " + text
	return !f.negatives[call], f.record(call)
}

func (f *fakeBrowser) Screenshot(ctx context.Context, name string, fullPage bool) (string, error) {
	call := "screenshot " + name
	if err := f.record(call); err != nil {
		return "", err
	}
	return "/tmp/shots/" + name + ".png", nil
}

func (f *fakeBrowser) EndSession(ctx context.Context, status report.RunStatus) (string, error) {
	f.endStatus = status
	if err := f.record("end"); err != nil {
		return "", err
	}
	return f.reportPath, nil
}

func (f *fakeBrowser) Snapshot(ctx context.Context, maxLength int) (*browser.PageSnapshot, error) {
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	return f.snapshot, nil
}

func (f *fakeBrowser) Reporter() *report.Reporter {
	return f.reporter
}
