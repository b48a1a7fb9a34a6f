// File: internal/mailtm/errors.go
package mailtm

import (
	"errors"
	"fmt"
)

// maxErrorBody bounds the provider body kept on a ProviderError.
const maxErrorBody = 2000

var (
	// ErrAddressTaken is returned by CreateAccount when the provider answers 422.
	ErrAddressTaken = errors.New("mailbox address already taken")
	// ErrNoActiveDomain means GET /domains returned nothing usable.
	ErrNoActiveDomain = errors.New("no active domain available")
)

// ProviderError reports a failed or malformed exchange with the mail provider.
type ProviderError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("mail provider %s failed", e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "...(truncated)"
	}
	return string(b)
}
