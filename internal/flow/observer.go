// internal/flow/observer.go
package flow

import (
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/signupflow/internal/browser"
)

const maxLoggedBody = 4096

var interestingURLParts = []string{"confirmation", "api", "auth", "login", "subscriptions"}

// LoggingObserver logs console output, page errors and the responses whose
// URL mentions one of the flow's endpoints, with textual bodies.
type LoggingObserver struct {
	logger *zap.Logger
}

func NewLoggingObserver(logger *zap.Logger) *LoggingObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingObserver{logger: logger.Named("page")}
}

func (o *LoggingObserver) Interested(url string) bool {
	lower := strings.ToLower(url)
	for _, part := range interestingURLParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

func (o *LoggingObserver) OnResponse(resp browser.Response) {
	fields := []zap.Field{
		zap.String("method", resp.Method),
		zap.String("url", resp.URL),
		zap.Int("status", resp.Status),
	}
	if browser.IsTextual(resp.MIMEType) && len(resp.Body) > 0 {
		body := resp.Body
		if len(body) > maxLoggedBody {
			body = body[:maxLoggedBody]
		}
		fields = append(fields, zap.ByteString("body", body))
	}
	o.logger.Info("Response observed.", fields...)
}

func (o *LoggingObserver) OnConsole(msg browser.ConsoleMessage) {
	o.logger.Debug("Console message.", zap.String("level", msg.Level), zap.String("text", msg.Text))
}

func (o *LoggingObserver) OnPageError(text string) {
	o.logger.Warn("Uncaught page error.", zap.String("error", text))
}
