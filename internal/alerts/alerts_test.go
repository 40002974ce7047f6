package alerts

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"pulsemon/internal/models"
	"pulsemon/internal/netx"
	"pulsemon/internal/state"
)

var testNow = time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDeliverRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	var lastBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		lastBody.Store(string(b))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(NewWebhook(netx.NewClient("", nil), srv.URL, time.Second), discardLogger())
	d.sleep = func(time.Duration) {}

	event := models.AlertEvent{Target: "api", Transition: models.TransitionDown, Reason: "HTTP 500", TS: testNow}
	d.deliver(context.Background(), event)

	if got := calls.Load(); got != 3 {
		t.Fatalf("delivery attempts = %d, want 3", got)
	}
	var decoded models.AlertEvent
	if err := json.Unmarshal([]byte(lastBody.Load().(string)), &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.Target != "api" || decoded.Reason != "HTTP 500" {
		t.Fatalf("payload = %+v, want same event on every attempt", decoded)
	}
}

func TestDeliverDropsAfterThreeFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(NewWebhook(netx.NewClient("", nil), srv.URL, time.Second), discardLogger())
	d.sleep = func(time.Duration) {}

	// Must return (dropping the event) rather than retry forever.
	d.deliver(context.Background(), models.AlertEvent{Target: "api", Transition: models.TransitionDown, TS: testNow})
	if got := calls.Load(); got != 3 {
		t.Fatalf("delivery attempts = %d, want exactly 3", got)
	}
}

func TestEnqueueNoopWhenWebhookDisabled(t *testing.T) {
	d := NewDispatcher(NewWebhook(netx.NewClient("", nil), "", time.Second), discardLogger())
	d.Enqueue(models.AlertEvent{Target: "api"})
	if len(d.queue) != 0 {
		t.Fatalf("queue len = %d, want 0 when webhook unconfigured", len(d.queue))
	}
}

func TestWorkerEventDistinguishesNoInternet(t *testing.T) {
	event := WorkerEvent(state.ActionDown, 0, false, testNow)
	if event.Reason != "no internet" {
		t.Fatalf("reason = %q, want no internet", event.Reason)
	}
	event = WorkerEvent(state.ActionDown, 0, true, testNow)
	if event.Reason != "controller unreachable despite internet" {
		t.Fatalf("reason = %q, want controller unreachable despite internet", event.Reason)
	}
}

func TestWorkerEventPerResponseCode(t *testing.T) {
	cases := map[int]string{
		220: "controller accepted heartbeat but could not read prior state",
		221: "controller detected recovery but failed to persist it",
		500: "controller internal error, heartbeat aborted",
		418: "controller returned unexpected status 418",
	}
	for code, want := range cases {
		event := WorkerEvent(state.ActionDown, code, true, testNow)
		if event.Reason != want {
			t.Fatalf("code %d: reason = %q, want %q", code, event.Reason, want)
		}
		if event.Transition != models.TransitionWorker {
			t.Fatalf("code %d: transition = %s, want worker-status-changed", code, event.Transition)
		}
	}

	event := WorkerEvent(state.ActionRecovered, 200, true, testNow)
	if event.Transition != models.TransitionRecovered {
		t.Fatalf("transition = %s, want recovered", event.Transition)
	}
}

func TestServiceEventCarriesReasonAndLatency(t *testing.T) {
	latency := int64(42)
	down := ServiceEvent("api", state.ActionDown, models.CheckResult{Status: models.StatusError, Error: "HTTP 500"}, testNow)
	if down.Transition != models.TransitionDown || down.Reason != "HTTP 500" {
		t.Fatalf("down event = %+v, want down/HTTP 500", down)
	}

	recovered := ServiceEvent("api", state.ActionRecovered, models.CheckResult{Status: models.StatusHealthy, LatencyMS: &latency}, testNow)
	if recovered.Transition != models.TransitionRecovered {
		t.Fatalf("transition = %s, want recovered", recovered.Transition)
	}
	if recovered.LatencyMS == nil || *recovered.LatencyMS != 42 {
		t.Fatalf("latency = %v, want 42", recovered.LatencyMS)
	}
}

func TestDispatcherRunDeliversQueuedEvents(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 2 {
			close(done)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(NewWebhook(netx.NewClient("", nil), srv.URL, time.Second), discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Enqueue(models.AlertEvent{Target: "a", Transition: models.TransitionDown, TS: testNow})
	d.Enqueue(models.AlertEvent{Target: "b", Transition: models.TransitionRecovered, TS: testNow})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queued events were not delivered")
	}
}
