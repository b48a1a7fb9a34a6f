// internal/flow/errors.go
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/signupflow/internal/confirm"
)

const maxErrorBody = 2000

// UIError reports a form field or control that was missing or never became
// visible within the implicit wait.
type UIError struct {
	Step     string
	Selector string
	Err      error
}

func (e *UIError) Error() string {
	return fmt.Sprintf("%s: %s not found or not visible: %v", e.Step, e.Selector, e.Err)
}

func (e *UIError) Unwrap() error { return e.Err }

// TrialActivationError reports a trial request the backend answered with a
// non-success status. Body is truncated.
type TrialActivationError struct {
	Status int
	URL    string
	Body   string
}

func (e *TrialActivationError) Error() string {
	return fmt.Sprintf("trial activation failed: HTTP %d from %s: %s", e.Status, e.URL, e.Body)
}

func truncate(b []byte) string {
	if len(b) <= maxErrorBody {
		return string(b)
	}
	return string(b[:maxErrorBody]) + "...(truncated)"
}

// hardWait turns the failure of a wait bounded by after into a
// *confirm.TimeoutError, unless the run itself was canceled.
func hardWait(parent context.Context, what string, after time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &confirm.TimeoutError{What: what, After: after}
	}
	return fmt.Errorf("waiting for %s: %w", what, err)
}
