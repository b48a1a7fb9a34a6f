// File: internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	// settleQuietPeriod is how long the network must stay idle to count as settled.
	settleQuietPeriod   = 500 * time.Millisecond
	urlPollInterval     = 250 * time.Millisecond
	readyStatePollEvery = 100 * time.Millisecond
	closeTimeout        = 5 * time.Second
)

// Page is one browser tab.
type Page struct {
	tabCtx         context.Context
	cancel         context.CancelFunc
	listener       *listener
	tracer         *Tracer
	elementTimeout time.Duration
	logger         *zap.Logger

	closeOnce sync.Once
	closeErr  error
	onClose   func(*Page)
}

// run executes actions against the tab, bounded by ctx and an optional timeout.
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.tabCtx, ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}
	return chromedp.Run(runCtx, actions...)
}

// SetObserver attaches a diagnostic observer; nil detaches it.
func (p *Page) SetObserver(o Observer) {
	p.listener.setObserver(o)
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))
	if err := p.run(ctx, 0, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// Fill waits for selector to become visible and types value into it.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	return p.run(ctx, p.elementTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

// ClickText clicks the first visible button, link or role=button element
// whose normalized text equals text.
func (p *Page) ClickText(ctx context.Context, text string) error {
	sel := TextSelector(text)
	return p.run(ctx, p.elementTimeout,
		chromedp.WaitVisible(sel, chromedp.BySearch),
		chromedp.Click(sel, chromedp.BySearch),
	)
}

// Click clicks the element matching a CSS selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	return p.run(ctx, p.elementTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// WaitSettled returns as soon as either the document reports readyState
// "complete" or the network has been idle for a short quiet period. It
// returns an error only if neither happened within timeout.
func (p *Page) WaitSettled(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan error, 2)
	go func() {
		results <- p.waitReadyState(ctx)
	}()
	go func() {
		results <- p.listener.waitNetworkIdle(ctx, settleQuietPeriod)
	}()

	var errs []error
	for i := 0; i < 2; i++ {
		err := <-results
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (p *Page) waitReadyState(ctx context.Context) error {
	var complete bool
	return p.run(ctx, 0, chromedp.Poll(`document.readyState === "complete"`, &complete,
		chromedp.WithPollingInterval(readyStatePollEvery)))
}

// WaitURLContains polls the current URL until it contains substr.
func (p *Page) WaitURLContains(ctx context.Context, substr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(urlPollInterval)
	defer ticker.Stop()
	for {
		current, err := p.URL(ctx)
		if err == nil && strings.Contains(current, substr) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitHidden waits until selector is no longer visible.
func (p *Page) WaitHidden(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(ctx, timeout, chromedp.WaitNotVisible(selector, chromedp.ByQuery))
}

// ExpectResponse arms a one-shot matcher for the next response whose request
// method equals method and whose URL matches pattern. Arm it before the
// action that triggers the request.
func (p *Page) ExpectResponse(method string, pattern *regexp.Regexp) ResponseWaiter {
	return p.listener.expect(method, pattern)
}

// URL returns the current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, 0, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Screenshot captures the viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, 0, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Snapshot returns the serialized DOM.
func (p *Page) Snapshot(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Checkpoint records a screenshot and DOM snapshot under name when tracing
// is enabled. Capture failures end up in the trace, not in the caller.
func (p *Page) Checkpoint(ctx context.Context, name string) {
	if p.tracer == nil {
		return
	}
	url, _ := p.URL(ctx)
	png, shotErr := p.Screenshot(ctx)
	html, snapErr := p.Snapshot(ctx)
	p.tracer.Checkpoint(name, url, png, html, errors.Join(shotErr, snapErr))
}

// Close drains pending body fetches and closes the tab. Safe to call twice.
func (p *Page) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		stopCtx, cancel := context.WithTimeout(Detach(ctx), closeTimeout)
		defer cancel()
		p.listener.stop(stopCtx)

		p.closeErr = chromedp.Cancel(p.tabCtx)
		if errors.Is(p.closeErr, context.Canceled) {
			p.closeErr = nil
		}
		p.cancel()
		if p.onClose != nil {
			p.onClose(p)
		}
	})
	return p.closeErr
}

// TextSelector builds the XPath used by ClickText.
func TextSelector(text string) string {
	lit := xpathLiteral(text)
	return fmt.Sprintf(`//*[self::button or self::a or @role="button" or self::input[@type="submit"]][normalize-space(.)=%s or @value=%s]`, lit, lit)
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		quoted = append(quoted, `"`+part+`"`)
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
