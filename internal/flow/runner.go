// internal/flow/runner.go
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/signupflow/internal/config"
	"github.com/xkilldash9x/signupflow/internal/identity"
	"github.com/xkilldash9x/signupflow/internal/mailtm"
	"github.com/xkilldash9x/signupflow/internal/metrics"
)

// Stage names, as used in logs and metrics.
const (
	StageMailbox      = "mailbox"
	StageSignup       = "signup"
	StageConfirmation = "confirmation"
	StageSession      = "session"
	StageReport       = "report"
)

const teardownTimeout = 30 * time.Second

// MailboxProvisioner creates the disposable inbox.
type MailboxProvisioner interface {
	CreateMailbox(ctx context.Context) (*mailtm.Mailbox, error)
}

// LinkWatcher waits for the confirmation link to arrive.
type LinkWatcher interface {
	WaitForConfirmationLink(ctx context.Context, token string) (string, error)
}

// ResultReporter delivers the outcome.
type ResultReporter interface {
	PostResult(ctx context.Context, desiredLogin, email string) error
}

// Result is what a successful run produced.
type Result struct {
	RunID           string
	Mailbox         *mailtm.Mailbox
	Identity        identity.Identity
	ConfirmationURL string
	DesiredLogin    string
}

// Runner wires the five stages together.
type Runner struct {
	Provisioner MailboxProvisioner
	Watcher     LinkWatcher
	Reporter    ResultReporter
	Driver      *Driver
	Strategy    identity.LoginStrategy
	Launch      Launcher
	Identity    config.IdentityConfig
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

func (r *Runner) validate() error {
	if r.Provisioner == nil || r.Watcher == nil || r.Reporter == nil ||
		r.Driver == nil || r.Strategy == nil || r.Launch == nil {
		return errors.New("runner is missing a dependency")
	}
	return nil
}

// Run executes the pipeline once. The first failing stage ends the run. The
// browser is released on every path; teardown problems are logged only.
func (r *Runner) Run(ctx context.Context) (_ *Result, err error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	res := &Result{RunID: uuid.NewString()}
	logger = logger.Named("runner").With(zap.String("run_id", res.RunID))
	logger.Info("Starting run.")

	started := time.Now()
	defer func() {
		r.Metrics.ObserveRun(time.Since(started), err)
		if err != nil {
			logger.Error("Run failed.", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
		}
	}()

	res.DesiredLogin, err = r.Strategy.DesiredLogin()
	if err != nil {
		return nil, fmt.Errorf("failed to choose the desired login: %w", err)
	}

	err = r.stage(ctx, logger, StageMailbox, func(ctx context.Context) error {
		mb, err := r.Provisioner.CreateMailbox(ctx)
		res.Mailbox = mb
		return err
	})
	if err != nil {
		return nil, err
	}

	res.Identity, err = identity.NewIdentity(r.Identity, res.Mailbox.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to build the signup identity: %w", err)
	}

	b, err := r.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		// Teardown must run even when ctx is already canceled.
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		defer cancel()
		if terr := b.Shutdown(tctx); terr != nil {
			logger.Error("Browser teardown reported errors.", zap.Error(terr))
		}
	}()

	page, err := b.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	err = r.stage(ctx, logger, StageSignup, func(ctx context.Context) error {
		return r.Driver.SubmitSignup(ctx, page, res.Identity)
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(ctx, logger, StageConfirmation, func(ctx context.Context) error {
		link, err := r.Watcher.WaitForConfirmationLink(ctx, res.Mailbox.Token)
		res.ConfirmationURL = link
		return err
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(ctx, logger, StageSession, func(ctx context.Context) error {
		return r.Driver.CompleteSessionAndTrial(ctx, page, res.ConfirmationURL,
			res.Identity.Email, res.Identity.Password, res.DesiredLogin)
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(ctx, logger, StageReport, func(ctx context.Context) error {
		return r.Reporter.PostResult(ctx, res.DesiredLogin, res.Identity.Email)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Run completed.",
		zap.String("email", res.Identity.Email),
		zap.String("desired_login", res.DesiredLogin),
		zap.String("confirmation_url", res.ConfirmationURL),
		zap.Duration("elapsed", time.Since(started)),
	)
	return res, nil
}

func (r *Runner) stage(ctx context.Context, logger *zap.Logger, name string, fn func(context.Context) error) error {
	logger = logger.With(zap.String("stage", name))
	logger.Info("Stage started.")

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	r.Metrics.ObserveStage(name, elapsed, err)

	if err != nil {
		return fmt.Errorf("%s stage: %w", name, err)
	}
	logger.Info("Stage finished.", zap.Duration("elapsed", elapsed))
	return nil
}
