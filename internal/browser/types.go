// File: internal/browser/types.go
package browser

import (
	"context"
	"strings"
)

// Response is a network response observed on a page. Body is only
// populated for responses someone asked for (an expectation or an
// interested observer).
type Response struct {
	Method   string
	URL      string
	Status   int
	MIMEType string
	Body     []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status <= 299
}

// ConsoleMessage is one console API call made by the page.
type ConsoleMessage struct {
	Level string
	Text  string
}

// Observer receives diagnostic page events. Nothing in the page's behaviour
// depends on whether an observer is attached.
type Observer interface {
	// Interested decides whether the response at url is delivered, body included.
	Interested(url string) bool
	OnResponse(resp Response)
	OnConsole(msg ConsoleMessage)
	OnPageError(text string)
}

// ResponseWaiter resolves with the first response matching an armed expectation.
type ResponseWaiter interface {
	Wait(ctx context.Context) (*Response, error)
}

// IsTextual reports whether a MIME type carries human readable text.
func IsTextual(mimeType string) bool {
	mt := strings.ToLower(mimeType)
	return strings.HasPrefix(mt, "text/") ||
		strings.Contains(mt, "json") ||
		strings.Contains(mt, "xml") ||
		strings.Contains(mt, "javascript") ||
		strings.Contains(mt, "x-www-form-urlencoded")
}
