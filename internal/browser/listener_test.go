// internal/browser/listener_test.go
package browser

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newTestListener builds a listener without a CDP target. Body fetches fail
// fast with chromedp.ErrInvalidContext, leaving Body nil.
func newTestListener(t *testing.T, tracer *Tracer) *listener {
	t.Helper()
	return &listener{
		tabCtx:   context.Background(),
		logger:   zaptest.NewLogger(t),
		tracer:   tracer,
		requests: make(map[network.RequestID]*requestInfo),
	}
}

type recordingObserver struct {
	substr string

	mu        sync.Mutex
	responses []Response
	console   []ConsoleMessage
	errors    []string
}

func (o *recordingObserver) Interested(url string) bool {
	return strings.Contains(url, o.substr)
}

func (o *recordingObserver) OnResponse(resp Response) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.responses = append(o.responses, resp)
}

func (o *recordingObserver) OnConsole(msg ConsoleMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.console = append(o.console, msg)
}

func (o *recordingObserver) OnPageError(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, text)
}

func sendRequest(l *listener, id, method, url string) {
	l.handle(&network.EventRequestWillBeSent{
		RequestID: network.RequestID(id),
		Request:   &network.Request{Method: method, URL: url},
	})
}

func receiveResponse(l *listener, id, url string, status int64, mime string) {
	l.handle(&network.EventResponseReceived{
		RequestID: network.RequestID(id),
		Response:  &network.Response{URL: url, Status: status, MimeType: mime},
	})
}

func finish(l *listener, id string) {
	l.handle(&network.EventLoadingFinished{RequestID: network.RequestID(id)})
}

func stopListener(t *testing.T, l *listener) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l.stop(ctx)
}

func TestListener_NetworkIdle(t *testing.T) {
	l := newTestListener(t, nil)
	defer stopListener(t, l)

	sendRequest(l, "1", "GET", "https://client.example.io/")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	err := l.waitNetworkIdle(ctx, 50*time.Millisecond)
	cancel()
	assert.ErrorIs(t, err, context.DeadlineExceeded, "a request is still in flight")

	finish(l, "1")

	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, l.waitNetworkIdle(ctx, 50*time.Millisecond))
}

func TestListener_RedirectCountsOnce(t *testing.T) {
	l := newTestListener(t, nil)
	defer stopListener(t, l)

	sendRequest(l, "1", "GET", "https://client.example.io/a")
	sendRequest(l, "1", "GET", "https://client.example.io/b")
	finish(l, "1")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Equal(t, 0, l.active)
	assert.Empty(t, l.requests)
}

func TestListener_FailedBeforeResponse(t *testing.T) {
	l := newTestListener(t, nil)
	defer stopListener(t, l)

	exp := l.expect("GET", regexp.MustCompile(`/a$`))
	sendRequest(l, "1", "GET", "https://client.example.io/a")
	l.handle(&network.EventLoadingFailed{RequestID: "1", ErrorText: "net::ERR_ABORTED"})

	l.mu.Lock()
	assert.Equal(t, 0, l.active)
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := exp.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestListener_Expectation(t *testing.T) {
	l := newTestListener(t, nil)
	defer stopListener(t, l)

	trial := regexp.MustCompile(`/api/subscriptions/users/[^/]+/trial`)
	exp := l.expect("post", trial)

	// Same URL, wrong method.
	sendRequest(l, "1", "GET", "https://client.example.io/api/subscriptions/users/42/trial")
	receiveResponse(l, "1", "https://client.example.io/api/subscriptions/users/42/trial", 200, "application/json")
	finish(l, "1")

	sendRequest(l, "2", "POST", "https://client.example.io/api/subscriptions/users/42/trial")
	receiveResponse(l, "2", "https://client.example.io/api/subscriptions/users/42/trial", 409, "application/json")
	finish(l, "2")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := exp.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "POST", resp.Method)
	assert.Equal(t, 409, resp.Status)
	assert.False(t, resp.OK())
	assert.Nil(t, resp.Body)

	l.mu.Lock()
	assert.Empty(t, l.expectations, "a resolved expectation is disarmed")
	l.mu.Unlock()
}

func TestListener_ExpectationWaitCanceled(t *testing.T) {
	l := newTestListener(t, nil)
	exp := l.expect("POST", regexp.MustCompile(`/trial`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, err := exp.Wait(ctx)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListener_Observer(t *testing.T) {
	l := newTestListener(t, nil)
	obs := &recordingObserver{substr: "/api/"}
	l.setObserver(obs)

	sendRequest(l, "1", "GET", "https://client.example.io/api/me")
	receiveResponse(l, "1", "https://client.example.io/api/me", 200, "application/json")
	finish(l, "1")

	sendRequest(l, "2", "GET", "https://client.example.io/logo.png")
	receiveResponse(l, "2", "https://client.example.io/logo.png", 200, "image/png")
	finish(l, "2")

	l.handle(&runtime.EventConsoleAPICalled{
		Type: runtime.APITypeWarning,
		Args: []*runtime.RemoteObject{{Description: "deprecated"}, {Description: "api"}},
	})
	l.handle(&runtime.EventExceptionThrown{
		ExceptionDetails: &runtime.ExceptionDetails{
			Text:      "Uncaught",
			Exception: &runtime.RemoteObject{Description: "TypeError: x is undefined"},
		},
	})
	l.handle(&runtime.EventExceptionThrown{})

	stopListener(t, l)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.responses, 1)
	assert.Equal(t, "https://client.example.io/api/me", obs.responses[0].URL)
	assert.Equal(t, 200, obs.responses[0].Status)
	assert.Equal(t, []ConsoleMessage{{Level: "warning", Text: "deprecated api"}}, obs.console)
	assert.Equal(t, []string{"TypeError: x is undefined"}, obs.errors)
}

func TestListener_NoDeliveryAfterStop(t *testing.T) {
	l := newTestListener(t, nil)
	obs := &recordingObserver{substr: "/api/"}
	l.setObserver(obs)
	stopListener(t, l)

	sendRequest(l, "1", "GET", "https://client.example.io/api/me")
	receiveResponse(l, "1", "https://client.example.io/api/me", 200, "application/json")
	finish(l, "1")

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Empty(t, obs.responses)
}
