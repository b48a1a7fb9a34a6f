// File: internal/network/network_test.go
package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/signupflow/internal/config"
)

const payload = `{"hydra:member":[{"domain":"mail.example","isActive":true}]}`

func encode(t *testing.T, coding string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch coding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "br":
		w = brotli.NewWriter(&buf)
	case "zlib":
		w = zlib.NewWriter(&buf)
	case "raw":
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
		w = fw
	default:
		t.Fatalf("unknown coding %q", coding)
	}
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecodingTransport(t *testing.T) {
	tests := []struct {
		name   string
		header string
		body   func(t *testing.T) []byte
	}{
		{"gzip", "gzip", func(t *testing.T) []byte { return encode(t, "gzip", []byte(payload)) }},
		{"brotli", "br", func(t *testing.T) []byte { return encode(t, "br", []byte(payload)) }},
		{"zlib deflate", "deflate", func(t *testing.T) []byte { return encode(t, "zlib", []byte(payload)) }},
		{"raw deflate", "deflate", func(t *testing.T) []byte { return encode(t, "raw", []byte(payload)) }},
		{"gzip then brotli", "gzip, br", func(t *testing.T) []byte {
			return encode(t, "br", encode(t, "gzip", []byte(payload)))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body(t)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, acceptEncoding, r.Header.Get("Accept-Encoding"))
				w.Header().Set("Content-Encoding", tt.header)
				_, _ = w.Write(body)
			}))
			defer server.Close()

			client := &http.Client{Transport: NewDecodingTransport(&http.Transport{DisableCompression: true})}
			resp, err := client.Get(server.URL)
			require.NoError(t, err)
			defer resp.Body.Close()

			got, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, payload, string(got))
			assert.Empty(t, resp.Header.Get("Content-Encoding"))
			assert.True(t, resp.Uncompressed)
		})
	}
}

func TestDecodeBody(t *testing.T) {
	t.Run("unsupported coding leaves the body alone", func(t *testing.T) {
		original := io.NopCloser(bytes.NewReader([]byte("x")))
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": []string{"zstd"}},
			Body:   original,
		}
		err := DecodeBody(resp)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "zstd")
		assert.Equal(t, original, resp.Body)
	})

	t.Run("identity is a no-op", func(t *testing.T) {
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": []string{"identity"}},
			Body:   io.NopCloser(bytes.NewReader([]byte(payload))),
		}
		require.NoError(t, DecodeBody(resp))
		got, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, payload, string(got))
		assert.False(t, resp.Uncompressed)
	})

	t.Run("corrupt gzip", func(t *testing.T) {
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": []string{"gzip"}},
			Body:   io.NopCloser(bytes.NewReader([]byte("not gzip"))),
		}
		err := DecodeBody(resp)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "gzip")
	})
}

func TestClientConfigFor(t *testing.T) {
	cfg := ClientConfigFor(config.MailConfig{RequestTimeout: 7 * time.Second}, "signupflow/test", zap.NewNop())
	assert.Equal(t, 7*time.Second, cfg.Timeout)
	assert.Equal(t, "signupflow/test", cfg.UserAgent)
	assert.True(t, cfg.Decompress)
	assert.True(t, cfg.HTTP2)
}

func TestNewTransport(t *testing.T) {
	tr := NewTransport(ClientConfig{Decompress: true, Insecure: true})
	assert.True(t, tr.DisableCompression)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)
	assert.Equal(t, defaultIdleConnsPerHost, tr.MaxIdleConnsPerHost)
}

func TestNewClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "signupflow/test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(encode(t, "gzip", []byte(payload)))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		Timeout:    5 * time.Second,
		Decompress: true,
		UserAgent:  "signupflow/test",
		Logger:     zap.NewNop(),
	})
	assert.Equal(t, 5*time.Second, client.Timeout)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
}

type idleRecorder struct {
	http.RoundTripper
	closed bool
}

func (r *idleRecorder) CloseIdleConnections() { r.closed = true }

func TestCloseIdleConnectionsReachesTransport(t *testing.T) {
	inner := &idleRecorder{RoundTripper: http.DefaultTransport}
	rt := &userAgentTransport{next: NewDecodingTransport(inner), userAgent: "x"}
	client := &http.Client{Transport: rt}

	client.CloseIdleConnections()
	assert.True(t, inner.closed)
}
