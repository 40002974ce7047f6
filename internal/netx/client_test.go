package netx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestRewriteInternalHost(t *testing.T) {
	c := NewClient("10.0.0.5", []string{"svc.internal"})

	got, host, ok := c.rewrite("https://svc.internal/health")
	if !ok {
		t.Fatal("expected rewrite for declared internal host")
	}
	if got != "http://10.0.0.5/health" {
		t.Fatalf("rewritten url = %q, want http://10.0.0.5/health", got)
	}
	if host != "svc.internal" {
		t.Fatalf("host = %q, want svc.internal", host)
	}
}

func TestRewritePreservesNonDefaultPort(t *testing.T) {
	c := NewClient("10.0.0.5", []string{"svc.internal"})
	got, _, ok := c.rewrite("https://svc.internal:8443/health")
	if !ok || got != "http://10.0.0.5:8443/health" {
		t.Fatalf("rewritten url = %q,%v want http://10.0.0.5:8443/health", got, ok)
	}
}

func TestRewriteSkipsUnknownHost(t *testing.T) {
	c := NewClient("10.0.0.5", []string{"svc.internal"})
	if _, _, ok := c.rewrite("https://example.com/health"); ok {
		t.Fatal("must not rewrite hosts that are not declared internal")
	}
}

// An overridden request reaches the target in plaintext with the original
// hostname in the Host header, with no TLS handshake.
func TestDoAppliesOverride(t *testing.T) {
	var gotHost string
	var gotTLS bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		gotTLS = r.TLS != nil
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	c := NewClient(u.Hostname(), []string{"svc.internal"})

	// Declared as HTTPS; the override forces plain HTTP to the IP.
	target := "https://svc.internal:" + u.Port() + "/health"
	res, err := c.Do(context.Background(), http.MethodGet, target, map[string]string{"X-Token": "abc"}, nil)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if gotHost != "svc.internal" {
		t.Fatalf("server saw Host %q, want svc.internal", gotHost)
	}
	if gotTLS {
		t.Fatal("connection used TLS, want plaintext")
	}
}

func TestDoWithoutOverridePassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "abc" {
			t.Errorf("missing custom header, got %q", r.Header.Get("X-Token"))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient("", nil)
	res, err := c.Do(context.Background(), http.MethodGet, srv.URL, map[string]string{"X-Token": "abc"}, nil)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", res.StatusCode)
	}
}
