// File: internal/confirm/errors.go
package confirm

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout matches every *TimeoutError via errors.Is.
var ErrTimeout = errors.New("timed out")

// TimeoutError reports a hard deadline that passed before the awaited
// signal showed up. The session driver reuses it for its own hard waits.
type TimeoutError struct {
	What  string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s", e.After, e.What)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
