// internal/flow/session.go
package flow

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

const (
	stepConfirm = "confirmation"
	stepLogin   = "login"
	stepTrial   = "trial"
)

// CompleteSessionAndTrial opens the confirmation link, logs in with email
// and password, and submits the trial form for desiredLogin. The run
// succeeds or fails on the status of the trial POST alone.
func (d *Driver) CompleteSessionAndTrial(ctx context.Context, page Page, confirmURL, email, password, desiredLogin string) error {
	if d.observer != nil {
		page.SetObserver(d.observer)
		defer page.SetObserver(nil)
	}
	sel := d.site.Selectors

	d.logger.Info("Opening confirmation link.", zap.String("url", confirmURL))
	if err := page.Navigate(ctx, confirmURL); err != nil {
		return fmt.Errorf("failed to open confirmation link: %w", err)
	}
	page.Checkpoint(ctx, "confirmation")

	if err := d.clickText(ctx, page, stepConfirm, d.site.Labels.BackToLogin); err != nil {
		page.Checkpoint(ctx, "confirmation-failed")
		return err
	}
	d.settle(ctx, page, stepConfirm)

	// Server side confirmation is not instant.
	if err := pause(ctx, d.session.ConfirmDelay); err != nil {
		return err
	}

	if err := d.fill(ctx, page, stepLogin, sel.LoginField, email); err != nil {
		page.Checkpoint(ctx, "login-failed")
		return err
	}
	if err := d.fill(ctx, page, stepLogin, sel.LoginPassword, password); err != nil {
		page.Checkpoint(ctx, "login-failed")
		return err
	}
	if err := page.Click(ctx, sel.LoginSubmit); err != nil {
		page.Checkpoint(ctx, "login-failed")
		return &UIError{Step: stepLogin, Selector: sel.LoginSubmit, Err: err}
	}
	d.settle(ctx, page, stepLogin)

	route := d.site.SubscriptionsRoute
	if err := page.WaitURLContains(ctx, route, d.session.SubscriptionsTimeout); err != nil {
		page.Checkpoint(ctx, "login-failed")
		return hardWait(ctx, fmt.Sprintf("a URL containing %q", route), d.session.SubscriptionsTimeout, err)
	}
	page.Checkpoint(ctx, "subscriptions")
	d.logger.Info("Logged in.", zap.String("email", email))

	// The trial form mounts late.
	if err := pause(ctx, d.session.FormMountDelay); err != nil {
		return err
	}

	// Armed before the click so the response cannot slip past.
	waiter := page.ExpectResponse(http.MethodPost, d.trialPattern)

	trialFields := []struct {
		selector string
		value    string
	}{
		{sel.TrialLogin, desiredLogin},
		{sel.TrialPassword, password},
		{sel.TrialConfirm, password},
	}
	for _, f := range trialFields {
		if err := d.fill(ctx, page, stepTrial, f.selector, f.value); err != nil {
			page.Checkpoint(ctx, "trial-failed")
			return err
		}
	}
	if err := d.clickText(ctx, page, stepTrial, d.site.Labels.Approve); err != nil {
		page.Checkpoint(ctx, "trial-failed")
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, d.session.TrialTimeout)
	resp, err := waiter.Wait(waitCtx)
	cancel()
	if err != nil {
		page.Checkpoint(ctx, "trial-failed")
		return hardWait(ctx, "the trial activation response", d.session.TrialTimeout, err)
	}
	if !resp.OK() {
		page.Checkpoint(ctx, "trial-failed")
		return &TrialActivationError{Status: resp.Status, URL: resp.URL, Body: truncate(resp.Body)}
	}
	d.logger.Info("Trial activated.", zap.String("login", desiredLogin), zap.Int("status", resp.Status))

	if modal := sel.Modal; modal != "" {
		if err := page.WaitHidden(ctx, modal, d.session.ModalTimeout); err != nil {
			d.logger.Debug("Confirmation modal stayed visible, continuing.", zap.Error(err))
		}
	}
	page.Checkpoint(ctx, "trial-activated")
	return nil
}
