// internal/browser/context_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey struct{}

func TestCombineContext(t *testing.T) {
	t.Run("CanceledByOperation", func(t *testing.T) {
		tabCtx := context.WithValue(context.Background(), ctxKey{}, "tab")
		opCtx, cancelOp := context.WithCancel(context.Background())

		combined, cancel := CombineContext(tabCtx, opCtx)
		defer cancel()

		assert.Equal(t, "tab", combined.Value(ctxKey{}))
		cancelOp()

		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not canceled with the operation context")
		}
	})

	t.Run("CanceledByTab", func(t *testing.T) {
		tabCtx, cancelTab := context.WithCancel(context.Background())
		combined, cancel := CombineContext(tabCtx, context.Background())
		defer cancel()

		cancelTab()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not canceled with the tab context")
		}
	})
}

func TestDetach(t *testing.T) {
	parent, cancel := context.WithTimeout(context.WithValue(context.Background(), ctxKey{}, "v"), time.Millisecond)
	cancel()

	detached := Detach(parent)
	require.Error(t, parent.Err())
	assert.NoError(t, detached.Err())
	assert.Nil(t, detached.Done())
	_, hasDeadline := detached.Deadline()
	assert.False(t, hasDeadline)
	assert.Equal(t, "v", detached.Value(ctxKey{}))
}
