package netx

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Client builds outbound HTTP requests with optional DNS/host override for
// internal targets. Requests to a declared internal hostname are rewritten to
// connect straight to the override IP over plain HTTP, carrying the original
// hostname in the Host header so virtual-host routing still works. Address
// resolution is forced to IPv4 to avoid slow IPv6-first paths.
// The client holds no state beyond its configuration and never retries.
type Client struct {
	std        *http.Client
	direct     *http.Client
	overrideIP string
	internal   map[string]struct{}
}

func NewClient(overrideIP string, internalHosts []string) *Client {
	dialer := &net.Dialer{Timeout: 3 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp4", addr)
		},
	}
	internal := make(map[string]struct{}, len(internalHosts))
	for _, h := range internalHosts {
		internal[h] = struct{}{}
	}
	return &Client{
		std: &http.Client{Transport: transport},
		direct: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		overrideIP: overrideIP,
		internal:   internal,
	}
}

// Do issues the request, applying the override rewrite when it matches.
// The caller controls the deadline through ctx.
func (c *Client) Do(ctx context.Context, method, rawURL string, headers map[string]string, body io.Reader) (*http.Response, error) {
	target := rawURL
	hostHeader := ""
	client := c.std

	if c.overrideIP != "" {
		if rewritten, host, ok := c.rewrite(rawURL); ok {
			target = rewritten
			hostHeader = host
			client = c.direct
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if hostHeader != "" {
		req.Host = hostHeader
	}
	return client.Do(req)
}

// rewrite maps https://svc.internal/path onto http://<overrideIP>/path and
// reports the original hostname. Only declared internal hosts are rewritten.
func (c *Client) rewrite(rawURL string) (string, string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", false
	}
	host := u.Hostname()
	if _, ok := c.internal[host]; !ok {
		return "", "", false
	}
	u.Scheme = "http"
	if port := u.Port(); port != "" && port != "443" {
		u.Host = net.JoinHostPort(c.overrideIP, port)
	} else {
		u.Host = c.overrideIP
	}
	return u.String(), host, true
}
