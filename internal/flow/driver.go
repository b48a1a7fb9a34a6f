// internal/flow/driver.go
package flow

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/signupflow/internal/browser"
	"github.com/xkilldash9x/signupflow/internal/config"
)

const (
	defaultSettleTimeout        = 15 * time.Second
	defaultSubscriptionsTimeout = 60 * time.Second
	defaultTrialTimeout         = 60 * time.Second
	defaultModalTimeout         = 10 * time.Second
	defaultTrialPattern         = `/api/subscriptions/users/[^/]+/trial`
)

// Driver runs the browser side of the flow: the signup form, and after
// confirmation the login and trial activation.
type Driver struct {
	site         config.SiteConfig
	session      config.SessionConfig
	trialPattern *regexp.Regexp
	observer     browser.Observer
	logger       *zap.Logger
}

// NewDriver validates the site settings. observer may be nil.
func NewDriver(site config.SiteConfig, session config.SessionConfig, observer browser.Observer, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pattern := site.TrialEndpointPattern
	if pattern == "" {
		pattern = defaultTrialPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid trial endpoint pattern: %w", err)
	}

	if session.SettleTimeout <= 0 {
		session.SettleTimeout = defaultSettleTimeout
	}
	if session.SubscriptionsTimeout <= 0 {
		session.SubscriptionsTimeout = defaultSubscriptionsTimeout
	}
	if session.TrialTimeout <= 0 {
		session.TrialTimeout = defaultTrialTimeout
	}
	if session.ModalTimeout <= 0 {
		session.ModalTimeout = defaultModalTimeout
	}

	return &Driver{
		site:         site,
		session:      session,
		trialPattern: re,
		observer:     observer,
		logger:       logger.Named("driver"),
	}, nil
}

// signupURL joins the site base URL and the signup path.
func (d *Driver) signupURL() string {
	return strings.TrimRight(d.site.BaseURL, "/") + "/" + strings.TrimLeft(d.site.SignupPath, "/")
}

func (d *Driver) fill(ctx context.Context, page Page, step, selector, value string) error {
	if err := page.Fill(ctx, selector, value); err != nil {
		return &UIError{Step: step, Selector: selector, Err: err}
	}
	return nil
}

func (d *Driver) clickText(ctx context.Context, page Page, step, label string) error {
	if err := page.ClickText(ctx, label); err != nil {
		return &UIError{Step: step, Selector: fmt.Sprintf("control %q", label), Err: err}
	}
	return nil
}

// settle is a best-effort wait; failing to settle never fails the run.
func (d *Driver) settle(ctx context.Context, page Page, step string) {
	if err := page.WaitSettled(ctx, d.session.SettleTimeout); err != nil {
		d.logger.Debug("Page did not settle, continuing.", zap.String("step", step), zap.Error(err))
	}
}

// pause waits d, returning early only when ctx ends.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
