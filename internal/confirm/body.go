// File: internal/confirm/body.go
package confirm

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/xkilldash9x/signupflow/internal/mailtm"
)

// messageBody picks the searchable text of a message: plain text when
// present, otherwise the HTML parts joined with newlines.
func messageBody(msg *mailtm.Message) string {
	if strings.TrimSpace(msg.Text) != "" {
		return msg.Text
	}
	return strings.Join(msg.HTML, "\n")
}

// parseSource extracts text and HTML bodies from a raw RFC 2822 message.
// Unparseable input is returned as-is so the pattern can still be tried on it.
func parseSource(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	defer mr.Close()

	var text, html []string
	for {
		part, err := mr.NextPart()
		if err != nil {
			// io.EOF or a malformed part; keep what was read.
			break
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			text = append(text, string(body))
		case strings.HasPrefix(contentType, "text/html"):
			html = append(html, string(body))
		}
	}

	if len(text) > 0 {
		return strings.Join(text, "\n")
	}
	return strings.Join(html, "\n")
}
