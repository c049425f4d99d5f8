// Package transport builds the HTTP round trippers used to reach the cart API.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Options selects and decorates the underlying transport.
type Options struct {
	Timeout   time.Duration
	ChromeTLS bool   // Present a Chrome TLS fingerprint (CDN bot scoring)
	UserAgent string // Sent on every request unless the caller set one
}

// New returns the round tripper described by opts.
// Every request gets a User-Agent and an X-Request-ID if missing, so that
// upstream logs can be correlated with ours.
func New(opts Options) http.RoundTripper {
	var base http.RoundTripper
	if opts.ChromeTLS {
		base = NewChromeTransport(opts.Timeout)
	} else {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSHandshakeTimeout = opts.Timeout
		base = t
	}
	return &headerTransport{base: base, userAgent: opts.UserAgent}
}

// headerTransport stamps identifying headers on outgoing requests.
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not mutate the caller's request
	r := req.Clone(req.Context())
	if t.userAgent != "" && r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", t.userAgent)
	}
	if r.Header.Get("X-Request-ID") == "" {
		r.Header.Set("X-Request-ID", uuid.NewString())
	}
	return t.base.RoundTrip(r)
}

// =============================================================================
// CHROME TLS FINGERPRINT
// =============================================================================
//
// Go's TLS ClientHello is easy to fingerprint (JA3) and some storefront CDNs
// throttle it. uTLS replays Chrome's hello; ALPN then picks h2 or http/1.1 and
// the matching Go transport does the framing.
//
// =============================================================================

// NewChromeTransport creates an http.RoundTripper that dials TLS with Chrome's
// fingerprint. Plain http:// requests skip uTLS entirely.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialChromeTLS(ctx, dialer, network, addr)
	}

	return &chromeTransport{
		h2: &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dial(ctx, network, addr)
			},
		},
		h1: &http.Transport{
			DialContext:    dialer.DialContext,
			DialTLSContext: dial,
		},
	}
}

type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip prefers HTTP/2 for https and falls back to HTTP/1.1 when the
// server does not negotiate h2.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}
	if resp, err := t.h2.RoundTrip(req); err == nil {
		return resp, nil
	}
	return t.h1.RoundTrip(req)
}

func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", host, err)
	}
	return tlsConn, nil
}
