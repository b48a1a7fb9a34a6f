// File: internal/confirm/watcher.go
package confirm

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/signupflow/internal/config"
	"github.com/xkilldash9x/signupflow/internal/mailtm"
	"github.com/xkilldash9x/signupflow/internal/metrics"
)

const (
	DefaultTimeout   = 120 * time.Second
	DefaultPollEvery = time.Second
	DefaultPattern   = `https?://client\.example\.io/confirmation-token/[0-9a-fA-F-]{36}`
)

// Inbox is the read side of the mail provider.
type Inbox interface {
	Messages(ctx context.Context, token string) ([]mailtm.MessageSummary, error)
	Message(ctx context.Context, token, id string) (*mailtm.Message, error)
	Source(ctx context.Context, token, id string) ([]byte, error)
}

// Watcher polls an inbox until a message body matches its pattern.
type Watcher struct {
	inbox     Inbox
	pattern   *regexp.Regexp
	timeout   time.Duration
	pollEvery time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewWatcher compiles pattern (DefaultPattern when empty) and applies the
// configured timings, falling back to the defaults for zero values.
func NewWatcher(inbox Inbox, cfg config.WatcherConfig, pattern string, m *metrics.Metrics, logger *zap.Logger) (*Watcher, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid confirmation pattern: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Watcher{
		inbox:     inbox,
		pattern:   re,
		timeout:   cfg.Timeout,
		pollEvery: cfg.PollEvery,
		metrics:   m,
		logger:    logger.Named("watcher"),
	}
	if w.timeout <= 0 {
		w.timeout = DefaultTimeout
	}
	if w.pollEvery <= 0 {
		w.pollEvery = DefaultPollEvery
	}
	return w, nil
}

// WaitForConfirmationLink returns the first substring of any inbox message
// that matches the pattern. It keeps polling while nothing matches and
// returns a *TimeoutError once the timeout has elapsed. Provider errors end
// the wait immediately.
func (w *Watcher) WaitForConfirmationLink(ctx context.Context, token string) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	// Bodies never change, so a message that did not match is not fetched again.
	scanned := make(map[string]struct{})
	start := time.Now()
	timer := time.NewTimer(w.pollEvery)
	defer timer.Stop()

	for poll := 1; ; poll++ {
		link, err := w.scan(waitCtx, token, scanned)
		if err != nil {
			return "", w.classify(ctx, waitCtx, err)
		}
		if link != "" {
			w.logger.Info("Confirmation link found.",
				zap.Int("polls", poll),
				zap.Duration("elapsed", time.Since(start)),
			)
			return link, nil
		}

		w.logger.Debug("No confirmation link yet.", zap.Int("poll", poll), zap.Int("scanned", len(scanned)))

		timer.Reset(w.pollEvery)
		select {
		case <-waitCtx.Done():
			return "", w.classify(ctx, waitCtx, waitCtx.Err())
		case <-timer.C:
		}
	}
}

func (w *Watcher) scan(ctx context.Context, token string, scanned map[string]struct{}) (string, error) {
	w.metrics.WatcherPoll()
	summaries, err := w.inbox.Messages(ctx, token)
	if err != nil {
		return "", err
	}

	for _, s := range summaries {
		if _, seen := scanned[s.ID]; seen {
			continue
		}
		body, err := w.body(ctx, token, s.ID)
		if err != nil {
			return "", err
		}
		if link := w.pattern.FindString(body); link != "" {
			w.logger.Debug("Matched message.", zap.String("id", s.ID), zap.String("subject", s.Subject))
			return link, nil
		}
		scanned[s.ID] = struct{}{}
	}
	return "", nil
}

func (w *Watcher) body(ctx context.Context, token, id string) (string, error) {
	msg, err := w.inbox.Message(ctx, token, id)
	if err != nil {
		return "", err
	}
	if body := messageBody(msg); body != "" {
		return body, nil
	}

	w.logger.Debug("Message has no text or HTML body, reading raw source.", zap.String("id", id))
	raw, err := w.inbox.Source(ctx, token, id)
	if err != nil {
		return "", err
	}
	return parseSource(raw), nil
}

// classify turns the expiry of the watcher's own deadline into a
// TimeoutError while letting parent cancellation and provider errors through.
func (w *Watcher) classify(parent, waitCtx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if waitCtx.Err() != nil {
		return &TimeoutError{What: "confirmation email", After: w.timeout}
	}
	return err
}
