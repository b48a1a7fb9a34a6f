// internal/flow/page.go
package flow

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/signupflow/internal/browser"
	"github.com/xkilldash9x/signupflow/internal/config"
)

// Page is the browser tab surface the drivers need. *browser.Page
// implements it; tests use an in-memory fake.
type Page interface {
	SetObserver(o browser.Observer)
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	ClickText(ctx context.Context, text string) error
	Click(ctx context.Context, selector string) error
	WaitSettled(ctx context.Context, timeout time.Duration) error
	WaitURLContains(ctx context.Context, substr string, timeout time.Duration) error
	WaitHidden(ctx context.Context, selector string, timeout time.Duration) error
	ExpectResponse(method string, pattern *regexp.Regexp) browser.ResponseWaiter
	URL(ctx context.Context) (string, error)
	Checkpoint(ctx context.Context, name string)
	Close(ctx context.Context) error
}

// Browser hands out pages and releases everything it acquired on Shutdown.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Shutdown(ctx context.Context) error
}

// Launcher starts a browser for one run.
type Launcher func(ctx context.Context) (Browser, error)

type chromeBrowser struct {
	m *browser.Manager
}

func (c chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	p, err := c.m.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (c chromeBrowser) Shutdown(ctx context.Context) error {
	return c.m.Shutdown(ctx)
}

// ChromeLauncher launches a local Chrome through browser.Manager.
func ChromeLauncher(cfg config.BrowserConfig, logger *zap.Logger) Launcher {
	return func(ctx context.Context) (Browser, error) {
		m, err := browser.NewManager(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return chromeBrowser{m: m}, nil
	}
}
