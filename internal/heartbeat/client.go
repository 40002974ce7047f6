package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"pulsemon/internal/models"
	"pulsemon/internal/netx"
)

// Controller response codes the agent interprets. NoResponse marks a local
// transport failure: the controller never answered at all.
const (
	NoResponse         = 0
	StatusOK           = 200
	StatusBlindWrite   = 220
	StatusRecoveryLost = 221
	StatusWorkerError  = 500
)

// Client sends the per-cycle heartbeat to the remote controller.
type Client struct {
	net     *netx.Client
	url     string
	secret  string
	timeout time.Duration
	log     *slog.Logger
}

func NewClient(net *netx.Client, url, secret string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{net: net, url: url, secret: secret, timeout: timeout, log: logger}
}

func (c *Client) Enabled() bool { return c.url != "" && c.secret != "" }

type servicePayload struct {
	Status models.Status `json:"status"`
}

// Send posts the aggregated per-service status map and returns the
// controller's response code, or NoResponse on transport failure.
func (c *Client) Send(ctx context.Context, statuses map[string]models.Status) int {
	if !c.Enabled() {
		return NoResponse
	}
	services := make(map[string]servicePayload, len(statuses))
	for name, status := range statuses {
		services[name] = servicePayload{Status: status}
	}
	body, _ := json.Marshal(map[string]any{"services": services})

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	headers := map[string]string{
		"Authorization": "Bearer " + c.secret,
		"Content-Type":  "application/json",
	}
	res, err := c.net.Do(ctx, http.MethodPost, c.url, headers, bytes.NewReader(body))
	if err != nil {
		c.log.Warn("heartbeat request failed", "err", err)
		return NoResponse
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return res.StatusCode
}
