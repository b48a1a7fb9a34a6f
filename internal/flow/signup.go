// internal/flow/signup.go
package flow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/signupflow/internal/identity"
)

const stepSignup = "signup"

// SubmitSignup fills and submits the signup form with id. A missing field or
// submit control yields a *UIError; the post-submit settle is best-effort.
func (d *Driver) SubmitSignup(ctx context.Context, page Page, id identity.Identity) error {
	url := d.signupURL()
	d.logger.Info("Opening signup page.", zap.String("url", url))
	if err := page.Navigate(ctx, url); err != nil {
		return fmt.Errorf("failed to open signup page: %w", err)
	}

	sel := d.site.Selectors
	fields := []struct {
		selector string
		value    string
	}{
		{sel.FirstName, id.FirstName},
		{sel.LastName, id.LastName},
		{sel.Email, id.Email},
		{sel.Password, id.Password},
		{sel.ConfirmPassword, id.Password},
	}
	for _, f := range fields {
		if err := d.fill(ctx, page, stepSignup, f.selector, f.value); err != nil {
			page.Checkpoint(ctx, "signup-failed")
			return err
		}
	}
	page.Checkpoint(ctx, "signup-filled")

	if err := d.clickText(ctx, page, stepSignup, d.site.Labels.Submit); err != nil {
		page.Checkpoint(ctx, "signup-failed")
		return err
	}
	d.settle(ctx, page, stepSignup)
	page.Checkpoint(ctx, "signup-submitted")

	d.logger.Info("Signup submitted.", zap.String("email", id.Email))
	return nil
}
