// File: internal/mailtm/client.go
package mailtm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/signupflow/internal/config"
)

// maxResponseBody caps how much of any provider response is read.
const maxResponseBody = 4 << 20

// Client talks to the mail.tm REST API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient builds a client for cfg.BaseURL. Requests are throttled to
// cfg.RateLimit per second; a non-positive limit disables throttling.
func NewClient(cfg config.MailConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.Named("mailtm"),
	}
}

// Domains lists the provider's domains. Both the bare array and the
// hydra collection envelope are accepted.
func (c *Client) Domains(ctx context.Context) ([]Domain, error) {
	body, err := c.do(ctx, "list domains", http.MethodGet, "/domains", "", nil)
	if err != nil {
		return nil, err
	}
	var domains []Domain
	if err := decodeCollection(body, &domains); err != nil {
		return nil, &ProviderError{Op: "list domains", Body: truncate(body), Err: err}
	}
	return domains, nil
}

// CreateAccount registers address. A 422 answer yields ErrAddressTaken.
func (c *Client) CreateAccount(ctx context.Context, address, password string) (*Account, error) {
	body, err := c.do(ctx, "create account", http.MethodPost, "/accounts", "", credentials{Address: address, Password: password})
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) && perr.StatusCode == http.StatusUnprocessableEntity {
			return nil, ErrAddressTaken
		}
		return nil, err
	}
	var acct Account
	if err := json.Unmarshal(body, &acct); err != nil {
		return nil, &ProviderError{Op: "create account", Body: truncate(body), Err: err}
	}
	return &acct, nil
}

// Token exchanges credentials for a bearer token.
func (c *Client) Token(ctx context.Context, address, password string) (string, string, error) {
	body, err := c.do(ctx, "issue token", http.MethodPost, "/token", "", credentials{Address: address, Password: password})
	if err != nil {
		return "", "", err
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", "", &ProviderError{Op: "issue token", Body: truncate(body), Err: err}
	}
	if tr.Token == "" {
		return "", "", &ProviderError{Op: "issue token", Body: truncate(body), Err: errors.New("empty token")}
	}
	return tr.Token, tr.ID, nil
}

// Messages lists the inbox of the account owning token.
func (c *Client) Messages(ctx context.Context, token string) ([]MessageSummary, error) {
	body, err := c.do(ctx, "list messages", http.MethodGet, "/messages", token, nil)
	if err != nil {
		return nil, err
	}
	var msgs []MessageSummary
	if err := decodeCollection(body, &msgs); err != nil {
		return nil, &ProviderError{Op: "list messages", Body: truncate(body), Err: err}
	}
	return msgs, nil
}

// Message fetches one full message.
func (c *Client) Message(ctx context.Context, token, id string) (*Message, error) {
	body, err := c.do(ctx, "get message", http.MethodGet, "/messages/"+url.PathEscape(id), token, nil)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, &ProviderError{Op: "get message", Body: truncate(body), Err: err}
	}
	return &msg, nil
}

// Source fetches the raw RFC 2822 source of a message.
func (c *Client) Source(ctx context.Context, token, id string) ([]byte, error) {
	body, err := c.do(ctx, "get source", http.MethodGet, "/sources/"+url.PathEscape(id), token, nil)
	if err != nil {
		return nil, err
	}
	// The endpoint answers JSON {"data": "<raw>"}; older deployments send the raw text.
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var src struct {
			Data string `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &src); err != nil {
			return nil, &ProviderError{Op: "get source", Body: truncate(body), Err: err}
		}
		return []byte(src.Data), nil
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, op, method, path, token string, payload interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &ProviderError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	c.logger.Debug("Provider call finished.",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{Op: op, StatusCode: resp.StatusCode, Body: truncate(body)}
	}
	return body, nil
}

// decodeCollection unmarshals either `[...]` or `{"hydra:member": [...]}`.
func decodeCollection(body []byte, out interface{}) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}
	var envelope struct {
		Member json.RawMessage `json:"hydra:member"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return err
	}
	if len(envelope.Member) == 0 {
		return errors.New(`response is neither an array nor a "hydra:member" collection`)
	}
	return json.Unmarshal(envelope.Member, out)
}
