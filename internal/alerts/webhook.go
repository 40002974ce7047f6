package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pulsemon/internal/models"
	"pulsemon/internal/netx"
)

// Webhook posts alert events to the configured endpoint. It performs a
// single attempt; retry policy lives in the dispatcher.
type Webhook struct {
	net     *netx.Client
	url     string
	timeout time.Duration
}

func NewWebhook(net *netx.Client, url string, timeout time.Duration) *Webhook {
	return &Webhook{net: net, url: url, timeout: timeout}
}

func (w *Webhook) Enabled() bool { return w.url != "" }

func (w *Webhook) Send(ctx context.Context, event models.AlertEvent) error {
	if !w.Enabled() {
		return fmt.Errorf("alert webhook not configured")
	}
	body, _ := json.Marshal(event)
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	res, err := w.net.Do(ctx, http.MethodPost, w.url, map[string]string{"Content-Type": "application/json"}, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	resp, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	if res.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d: %s", res.StatusCode, string(resp))
	}
	return nil
}
