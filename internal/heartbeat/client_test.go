package heartbeat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulsemon/internal/models"
	"pulsemon/internal/netx"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendReturnsControllerCode(t *testing.T) {
	var gotAuth string
	var gotBody map[string]map[string]struct {
		Status string `json:"status"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(220)
	}))
	defer srv.Close()

	c := NewClient(netx.NewClient("", nil), srv.URL, "s3cret", time.Second, discardLogger())
	code := c.Send(context.Background(), map[string]models.Status{
		"api": models.StatusHealthy,
		"db":  models.StatusDown,
	})
	if code != StatusBlindWrite {
		t.Fatalf("code = %d, want 220 passed through verbatim", code)
	}
	if gotAuth != "Bearer s3cret" {
		t.Fatalf("auth header = %q, want Bearer s3cret", gotAuth)
	}
	services := gotBody["services"]
	if services["api"].Status != "healthy" || services["db"].Status != "down" {
		t.Fatalf("payload = %v, want per-service status map", gotBody)
	}
}

func TestSendTransportFailureIsNoResponse(t *testing.T) {
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	c := NewClient(netx.NewClient("", nil), "http://"+addr, "s3cret", time.Second, discardLogger())
	if code := c.Send(context.Background(), nil); code != NoResponse {
		t.Fatalf("code = %d, want NoResponse on transport failure", code)
	}
}

func TestSendDisabledWithoutURLOrSecret(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(netx.NewClient("", nil), srv.URL, "", time.Second, discardLogger())
	if c.Enabled() {
		t.Fatal("client without secret must report disabled")
	}
	if code := c.Send(context.Background(), nil); code != NoResponse {
		t.Fatalf("code = %d, want NoResponse when disabled", code)
	}
	if called {
		t.Fatal("disabled client must not issue requests")
	}
}
