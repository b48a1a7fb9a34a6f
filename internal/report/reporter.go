// File: internal/report/reporter.go
package report

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/signupflow/internal/config"
)

const (
	// EventSignupCompleted is sent in the X-Webhook-Event header.
	EventSignupCompleted = "signup.completed"

	defaultTimeout = 15 * time.Second
	maxErrorBody   = 2000
)

// Result is the payload delivered to the webhook.
type Result struct {
	JobID        string `json:"jobId"`
	DesiredLogin string `json:"desiredLogin"`
	Email        string `json:"email"`
	Timestamp    string `json:"ts"`
}

// WebhookError reports a failed delivery. StatusCode is 0 when the request
// never got an answer.
type WebhookError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *WebhookError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("webhook delivery failed: %v", e.Err)
	}
	return fmt.Sprintf("webhook answered HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *WebhookError) Unwrap() error { return e.Err }

// Reporter posts run results to the configured webhook.
type Reporter struct {
	cfg        config.ReportConfig
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewReporter builds a reporter. The endpoint and job id are taken from cfg
// once; nothing is read from the environment afterwards.
func NewReporter(cfg config.ReportConfig, httpClient *http.Client, logger *zap.Logger) *Reporter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Reporter{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("reporter"),
		now:        time.Now,
	}
}

// Enabled reports whether both the endpoint and the job id are configured.
func (r *Reporter) Enabled() bool {
	return r.cfg.ReportingEnabled()
}

// PostResult delivers {jobId, desiredLogin, email, ts}. It is a logged no-op
// when reporting is not configured.
func (r *Reporter) PostResult(ctx context.Context, desiredLogin, email string) error {
	if !r.Enabled() {
		r.logger.Info("Result reporting disabled, endpoint or job id not configured.")
		return nil
	}

	payload, err := json.Marshal(Result{
		JobID:        r.cfg.JobID,
		DesiredLogin: desiredLogin,
		Email:        email,
		Timestamp:    r.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return &WebhookError{Err: err}
	}
	deliveryID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", EventSignupCompleted)
	req.Header.Set("X-Webhook-ID", deliveryID)
	if r.cfg.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(payload, r.cfg.Secret))
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return &WebhookError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &WebhookError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	r.logger.Info("Result delivered.",
		zap.String("job_id", r.cfg.JobID),
		zap.String("delivery_id", deliveryID),
		zap.Int("status", resp.StatusCode),
	)
	return nil
}

// Sign returns the X-Webhook-Signature value for payload.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
