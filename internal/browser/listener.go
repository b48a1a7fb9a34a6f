// File: internal/browser/listener.go
package browser

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	networkIdleCheckFrequency = 100 * time.Millisecond
	bodyFetchTimeout          = 15 * time.Second
)

type requestInfo struct {
	method   string
	url      string
	response *Response
	// want marks requests whose body must be fetched once loading finishes.
	want        bool
	expectation *expectation
}

// listener consumes CDP events for one tab. It tracks in-flight requests for
// network-idle detection, resolves response expectations and feeds the
// observer and tracer. CDP calls are never made from the event goroutine.
type listener struct {
	tabCtx context.Context
	logger *zap.Logger
	tracer *Tracer

	mu           sync.Mutex
	observer     Observer
	requests     map[network.RequestID]*requestInfo
	active       int
	expectations []*expectation
	stopped      bool

	wg sync.WaitGroup
}

func newListener(tabCtx context.Context, tracer *Tracer, logger *zap.Logger) *listener {
	l := &listener{
		tabCtx:   tabCtx,
		logger:   logger.Named("listener"),
		tracer:   tracer,
		requests: make(map[network.RequestID]*requestInfo),
	}
	chromedp.ListenTarget(tabCtx, l.handle)
	return l
}

func (l *listener) setObserver(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observer = o
}

func (l *listener) handle(ev interface{}) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		l.onRequest(ev)
	case *network.EventResponseReceived:
		l.onResponse(ev)
	case *network.EventLoadingFinished:
		l.onFinished(ev.RequestID, "")
	case *network.EventLoadingFailed:
		l.onFinished(ev.RequestID, ev.ErrorText)
	case *runtime.EventConsoleAPICalled:
		l.onConsole(ev)
	case *runtime.EventExceptionThrown:
		l.onException(ev)
	}
}

func (l *listener) onRequest(ev *network.EventRequestWillBeSent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Redirects reuse the request id; the request is still in flight.
	if _, ok := l.requests[ev.RequestID]; !ok {
		l.active++
	}
	l.requests[ev.RequestID] = &requestInfo{method: ev.Request.Method, url: ev.Request.URL}
	l.tracer.Event("request", map[string]interface{}{"method": ev.Request.Method, "url": ev.Request.URL})
}

func (l *listener) onResponse(ev *network.EventResponseReceived) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.requests[ev.RequestID]
	if !ok {
		return
	}
	req.response = &Response{
		Method:   req.method,
		URL:      ev.Response.URL,
		Status:   int(ev.Response.Status),
		MIMEType: ev.Response.MimeType,
	}

	for i, exp := range l.expectations {
		if exp.matches(req.method, ev.Response.URL) {
			req.expectation = exp
			req.want = true
			l.expectations = append(l.expectations[:i], l.expectations[i+1:]...)
			break
		}
	}
	if l.observer != nil && l.observer.Interested(ev.Response.URL) {
		req.want = true
	}

	l.tracer.Event("response", map[string]interface{}{
		"method": req.method,
		"url":    ev.Response.URL,
		"status": ev.Response.Status,
		"mime":   ev.Response.MimeType,
	})
}

func (l *listener) onFinished(id network.RequestID, failure string) {
	l.mu.Lock()
	req, ok := l.requests[id]
	if ok {
		delete(l.requests, id)
		if l.active > 0 {
			l.active--
		}
	}
	stopped := l.stopped
	observer := l.observer
	if ok && req.want && !stopped {
		// Registered under the lock so stop() cannot miss it.
		l.wg.Add(1)
	}
	l.mu.Unlock()

	if !ok || !req.want || stopped {
		return
	}
	if req.response == nil {
		// Failed before any response arrived; nothing to hand out.
		l.wg.Done()
		return
	}

	resp := *req.response
	go func() {
		defer l.wg.Done()
		if failure == "" && (req.expectation != nil || IsTextual(resp.MIMEType)) {
			resp.Body = l.fetchBody(id)
		}
		if req.expectation != nil {
			req.expectation.resolve(resp)
		}
		if observer != nil && observer.Interested(resp.URL) {
			observer.OnResponse(resp)
		}
	}()
}

func (l *listener) fetchBody(id network.RequestID) []byte {
	ctx, cancel := context.WithTimeout(Detach(l.tabCtx), bodyFetchTimeout)
	defer cancel()

	var body []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	if err != nil {
		l.logger.Debug("Could not fetch response body.", zap.String("request_id", string(id)), zap.Error(err))
		return nil
	}
	return body
}

func (l *listener) onConsole(ev *runtime.EventConsoleAPICalled) {
	parts := make([]string, 0, len(ev.Args))
	for _, arg := range ev.Args {
		switch {
		case len(arg.Value) > 0:
			parts = append(parts, strings.Trim(string(arg.Value), `"`))
		case arg.Description != "":
			parts = append(parts, arg.Description)
		}
	}
	msg := ConsoleMessage{Level: string(ev.Type), Text: strings.Join(parts, " ")}
	l.tracer.Event("console", map[string]interface{}{"level": msg.Level, "text": msg.Text})

	l.mu.Lock()
	observer := l.observer
	l.mu.Unlock()
	if observer != nil {
		observer.OnConsole(msg)
	}
}

func (l *listener) onException(ev *runtime.EventExceptionThrown) {
	if ev.ExceptionDetails == nil {
		return
	}
	text := ev.ExceptionDetails.Text
	if ev.ExceptionDetails.Exception != nil && ev.ExceptionDetails.Exception.Description != "" {
		text = ev.ExceptionDetails.Exception.Description
	}
	l.tracer.Event("pageerror", map[string]interface{}{"text": text})

	l.mu.Lock()
	observer := l.observer
	l.mu.Unlock()
	if observer != nil {
		observer.OnPageError(text)
	}
}

// expect arms an expectation before the action that triggers the request.
func (l *listener) expect(method string, pattern *regexp.Regexp) *expectation {
	exp := &expectation{method: strings.ToUpper(method), pattern: pattern, done: make(chan struct{})}
	l.mu.Lock()
	l.expectations = append(l.expectations, exp)
	l.mu.Unlock()
	return exp
}

// waitNetworkIdle blocks until no request has been in flight for quiet.
func (l *listener) waitNetworkIdle(ctx context.Context, quiet time.Duration) error {
	var idleSince time.Time
	ticker := time.NewTicker(networkIdleCheckFrequency)
	defer ticker.Stop()

	for {
		l.mu.Lock()
		active := l.active
		l.mu.Unlock()

		switch {
		case active > 0:
			idleSince = time.Time{}
		case idleSince.IsZero():
			idleSince = time.Now()
		case time.Since(idleSince) >= quiet:
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// stop waits for outstanding body fetches, bounded by ctx.
func (l *listener) stop(ctx context.Context) {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		l.logger.Warn("Stopped before all response bodies were fetched.", zap.Error(ctx.Err()))
	}
}

// expectation is a one-shot response matcher.
type expectation struct {
	method  string
	pattern *regexp.Regexp
	done    chan struct{}
	once    sync.Once
	resp    Response
}

func (e *expectation) matches(method, url string) bool {
	if e.method != "" && !strings.EqualFold(e.method, method) {
		return false
	}
	return e.pattern.MatchString(url)
}

func (e *expectation) resolve(resp Response) {
	e.once.Do(func() {
		e.resp = resp
		close(e.done)
	})
}

// Wait blocks until the matching response has arrived or ctx is done.
func (e *expectation) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-e.done:
		resp := e.resp
		return &resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
