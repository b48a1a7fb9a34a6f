// File: internal/network/compression.go
package network

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

const acceptEncoding = "br, gzip, deflate"

type decoderFunc func(io.Reader) (io.ReadCloser, error)

var decoders = map[string]decoderFunc{
	"gzip":    gzipDecoder,
	"x-gzip":  gzipDecoder,
	"br":      func(r io.Reader) (io.ReadCloser, error) { return io.NopCloser(brotli.NewReader(r)), nil },
	"deflate": deflateDecoder,
}

func gzipDecoder(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// deflateDecoder accepts both zlib-wrapped and raw deflate; servers send either.
func deflateDecoder(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	if hdr, err := br.Peek(2); err == nil && isZlibHeader(hdr[0], hdr[1]) {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

// DecodingTransport advertises br, gzip and deflate and hands callers the
// decoded body.
type DecodingTransport struct {
	next http.RoundTripper
}

// NewDecodingTransport wraps next, defaulting to http.DefaultTransport.
func NewDecodingTransport(next http.RoundTripper) *DecodingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &DecodingTransport{next: next}
}

func (t *DecodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := DecodeBody(resp); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func (t *DecodingTransport) CloseIdleConnections() { closeIdle(t.next) }

// DecodeBody replaces resp.Body with a reader that undoes every listed
// Content-Encoding, last applied first. On error resp.Body is left as it
// was and the caller discards the response.
func DecodeBody(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	layers := encodingLayers(resp.Header)
	if len(layers) == 0 {
		return nil
	}

	body := &decodedBody{raw: resp.Body}
	var r io.Reader = resp.Body
	for i := len(layers) - 1; i >= 0; i-- {
		decode, ok := decoders[layers[i]]
		if !ok {
			_ = body.closeDecoders()
			return fmt.Errorf("unsupported Content-Encoding %q", layers[i])
		}
		rc, err := decode(r)
		if err != nil {
			_ = body.closeDecoders()
			return fmt.Errorf("failed to open %s body: %w", layers[i], err)
		}
		body.decoders = append(body.decoders, rc)
		r = rc
	}
	body.Reader = r

	resp.Body = body
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// encodingLayers lists the non-identity codings in the order they were applied.
func encodingLayers(h http.Header) []string {
	var layers []string
	for _, value := range h.Values("Content-Encoding") {
		for _, token := range strings.Split(value, ",") {
			token = strings.ToLower(strings.TrimSpace(token))
			if token != "" && token != "identity" {
				layers = append(layers, token)
			}
		}
	}
	return layers
}

type decodedBody struct {
	io.Reader
	raw      io.ReadCloser
	decoders []io.ReadCloser
}

func (b *decodedBody) closeDecoders() error {
	var errs []error
	for i := len(b.decoders) - 1; i >= 0; i-- {
		errs = append(errs, b.decoders[i].Close())
	}
	return errors.Join(errs...)
}

func (b *decodedBody) Close() error {
	return errors.Join(b.closeDecoders(), b.raw.Close())
}
