// internal/flow/fakes_test.go
package flow

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/signupflow/internal/browser"
)

// fakePage records every call as a short string and fails on demand.
type fakePage struct {
	mu sync.Mutex

	calls        []string
	url          string
	failFill     map[string]error
	failClick    map[string]error
	settleErr    error
	urlErr       error
	hiddenErr    error
	trial        *browser.Response
	observer     browser.Observer
	observerSets int
	closed       bool
}

func newFakePage() *fakePage {
	return &fakePage{
		failFill:  make(map[string]error),
		failClick: make(map[string]error),
	}
}

func (p *fakePage) record(format string, args ...interface{}) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

// actions returns the recorded calls without checkpoints.
func (p *fakePage) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, c := range p.calls {
		if !strings.HasPrefix(c, "checkpoint ") {
			out = append(out, c)
		}
	}
	return out
}

func (p *fakePage) checkpoints() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, c := range p.calls {
		if name, ok := strings.CutPrefix(c, "checkpoint "); ok {
			out = append(out, name)
		}
	}
	return out
}

func (p *fakePage) SetObserver(o browser.Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = o
	p.observerSets++
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("navigate %s", url)
	p.url = url
	return nil
}

func (p *fakePage) Fill(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failFill[selector]; err != nil {
		return err
	}
	p.record("fill %s=%s", selector, value)
	return nil
}

func (p *fakePage) ClickText(ctx context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failClick[text]; err != nil {
		return err
	}
	p.record("clicktext %s", text)
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failClick[selector]; err != nil {
		return err
	}
	p.record("click %s", selector)
	return nil
}

func (p *fakePage) WaitSettled(ctx context.Context, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("settle")
	return p.settleErr
}

func (p *fakePage) WaitURLContains(ctx context.Context, substr string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("waiturl %s", substr)
	if p.urlErr != nil {
		return p.urlErr
	}
	p.url = "https://client.example.io/" + substr
	return nil
}

func (p *fakePage) WaitHidden(ctx context.Context, selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("hidden %s", selector)
	return p.hiddenErr
}

func (p *fakePage) ExpectResponse(method string, pattern *regexp.Regexp) browser.ResponseWaiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("expect %s %s", method, pattern)
	return fakeWaiter{resp: p.trial}
}

func (p *fakePage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) Checkpoint(ctx context.Context, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("checkpoint %s", name)
}

func (p *fakePage) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// fakeWaiter resolves immediately with resp, or never when resp is nil.
type fakeWaiter struct {
	resp *browser.Response
}

func (w fakeWaiter) Wait(ctx context.Context) (*browser.Response, error) {
	if w.resp == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r := *w.resp
	return &r, nil
}

// fakeBrowser hands out a single page.
type fakeBrowser struct {
	mu          sync.Mutex
	page        *fakePage
	newPageErr  error
	shutdownErr error
	shutdowns   int
}

func (b *fakeBrowser) NewPage(ctx context.Context) (Page, error) {
	if b.newPageErr != nil {
		return nil, b.newPageErr
	}
	return b.page, nil
}

func (b *fakeBrowser) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdowns++
	_ = b.page.Close(ctx)
	return b.shutdownErr
}
