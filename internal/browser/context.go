// File: internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from tabCtx (which carries the CDP target
// chromedp needs) that is also canceled when opCtx is done. opCtx supplies
// the caller's deadline and cancellation.
func CombineContext(tabCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tabCtx)

	go func() {
		select {
		case <-opCtx.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// valueOnlyContext keeps the parent's values (the CDP target) but drops its
// deadline and cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                       { return nil }
func (valueOnlyContext) Err() error                                  { return nil }

// Detach returns a context carrying ctx's values that is never canceled with
// it. Teardown and background body fetches use it so they can outlive the
// operation that triggered them.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
