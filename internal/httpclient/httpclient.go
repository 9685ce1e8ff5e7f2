package httpclient

import (
	"context"
	"net"
	"net/http"
	"time"
)

// DefaultUserAgent identifies every outgoing request.
const DefaultUserAgent = "chithravani/1.0"

type Options struct {
	PreferIPv4 bool
	// Timeout bounds a whole exchange. Story requests carry their own,
	// shorter deadline through the context.
	Timeout   time.Duration
	UserAgent string
}

// New returns the client shared by the Telegram transport and the story
// service client.
func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	network := func(requested string) string {
		if opts.PreferIPv4 {
			return "tcp4"
		}
		return requested
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, nw, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network(nw), addr)
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		// Story generation can take a while before the first byte.
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{next: transport, userAgent: userAgent},
	}
}

type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.next.RoundTrip(req)
}
