// File: internal/network/httpclient.go
package network

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/xkilldash9x/signupflow/internal/config"
)

const (
	dialTimeout      = 5 * time.Second
	keepAlive        = 15 * time.Second
	handshakeTimeout = 5 * time.Second
	headerTimeout    = 10 * time.Second
	idleConnTimeout  = 30 * time.Second

	defaultIdleConnsPerHost = 2
)

// ClientConfig shapes the client shared by the mailbox provider and the
// result webhook.
type ClientConfig struct {
	// Timeout bounds a whole request, body read included.
	Timeout          time.Duration
	IdleConnsPerHost int
	HTTP2            bool
	// Decompress negotiates br/gzip/deflate in NewDecodingTransport instead
	// of the transport's gzip-only handling.
	Decompress bool
	UserAgent  string
	// Insecure skips certificate verification. Local provider stubs only.
	Insecure bool
	Logger   *zap.Logger
}

// ClientConfigFor derives client settings from the mail section.
func ClientConfigFor(mail config.MailConfig, userAgent string, logger *zap.Logger) ClientConfig {
	return ClientConfig{
		Timeout:          mail.RequestTimeout,
		IdleConnsPerHost: defaultIdleConnsPerHost,
		HTTP2:            true,
		Decompress:       true,
		UserAgent:        userAgent,
		Logger:           logger,
	}
}

// NewTransport builds the pooled transport at the bottom of the stack.
func NewTransport(cfg ClientConfig) *http.Transport {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IdleConnsPerHost <= 0 {
		cfg.IdleConnsPerHost = defaultIdleConnsPerHost
	}

	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}
	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: cfg.Insecure},
		TLSHandshakeTimeout:   handshakeTimeout,
		ResponseHeaderTimeout: headerTimeout,
		IdleConnTimeout:       idleConnTimeout,
		MaxIdleConnsPerHost:   cfg.IdleConnsPerHost,
		DisableCompression:    cfg.Decompress,
		ForceAttemptHTTP2:     cfg.HTTP2,
	}
	if cfg.HTTP2 {
		if err := http2.ConfigureTransport(t); err != nil {
			logger.Warn("HTTP/2 unavailable, using HTTP/1.1.", zap.Error(err))
		}
	}
	return t
}

// NewClient stacks the user agent and decoding middleware on NewTransport.
// The caller closes every Response.Body.
func NewClient(cfg ClientConfig) *http.Client {
	var rt http.RoundTripper = NewTransport(cfg)
	if cfg.Decompress {
		rt = NewDecodingTransport(rt)
	}
	if cfg.UserAgent != "" {
		rt = &userAgentTransport{next: rt, userAgent: cfg.UserAgent}
	}
	return &http.Client{Transport: rt, Timeout: cfg.Timeout}
}

type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.next.RoundTrip(req)
}

func (t *userAgentTransport) CloseIdleConnections() { closeIdle(t.next) }

// closeIdle lets http.Client.CloseIdleConnections reach through middleware.
func closeIdle(rt http.RoundTripper) {
	if c, ok := rt.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}
