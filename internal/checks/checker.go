package checks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"syscall"
	"time"

	"pulsemon/internal/docker"
	"pulsemon/internal/models"
	"pulsemon/internal/netx"
)

// Checker probes a single target and resolves every outcome to a status
// value. No failure escapes as an error and no check blocks past its timeout.
type Checker struct {
	net     *netx.Client
	docker  *docker.Client
	timeout time.Duration
}

func NewChecker(net *netx.Client, dc *docker.Client, timeout time.Duration) *Checker {
	return &Checker{net: net, docker: dc, timeout: timeout}
}

func (c *Checker) Check(ctx context.Context, target models.Target) models.CheckResult {
	switch t := target.(type) {
	case models.HTTPTarget:
		return c.checkHTTP(ctx, t)
	case models.ContainerTarget:
		return c.checkContainer(ctx, t)
	default:
		return models.CheckResult{Status: models.StatusUnknown, Error: fmt.Sprintf("unsupported target %T", target)}
	}
}

func (c *Checker) checkHTTP(ctx context.Context, t models.HTTPTarget) models.CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res, err := c.net.Do(ctx, http.MethodGet, t.URL, t.Headers, nil)
	if err != nil {
		return classifyTransportError(err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))

	latency := time.Since(start).Milliseconds()
	code := res.StatusCode
	if code >= 200 && code < 400 {
		return models.CheckResult{Status: models.StatusHealthy, LatencyMS: &latency, Code: &code}
	}
	return models.CheckResult{
		Status:    models.StatusError,
		LatencyMS: &latency,
		Code:      &code,
		Error:     fmt.Sprintf("HTTP %d", code),
	}
}

func (c *Checker) checkContainer(ctx context.Context, t models.ContainerTarget) models.CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	state, err := c.docker.Inspect(ctx, t.Name)
	if err != nil {
		if errors.Is(err, docker.ErrNotFound) {
			return models.CheckResult{Status: models.StatusDown, Error: "container not found"}
		}
		return models.CheckResult{Status: models.StatusDown, Error: err.Error()}
	}
	if !state.Running {
		reason := "container exited"
		if state.Status != "" && state.Status != "exited" {
			reason = "container " + state.Status
		}
		return models.CheckResult{Status: models.StatusDown, Error: reason}
	}
	latency := time.Since(start).Milliseconds()
	return models.CheckResult{Status: models.StatusHealthy, LatencyMS: &latency}
}

// CheckInternet probes a fixed external endpoint, yielding a reachability
// flag plus latency.
func (c *Checker) CheckInternet(ctx context.Context, pingURL string) (bool, *int64) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res, err := c.net.Do(ctx, http.MethodHead, pingURL, nil, nil)
	if err != nil {
		return false, nil
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	if res.StatusCode >= 200 && res.StatusCode < 400 {
		latency := time.Since(start).Milliseconds()
		return true, &latency
	}
	return false, nil
}

func classifyTransportError(err error) models.CheckResult {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.CheckResult{Status: models.StatusTimeout, Error: "timeout"}
	case errors.Is(err, syscall.ECONNREFUSED):
		return models.CheckResult{Status: models.StatusDown, Error: "connection refused"}
	case errors.Is(err, syscall.ECONNRESET):
		return models.CheckResult{Status: models.StatusDown, Error: "connection reset"}
	default:
		if isTimeout(err) {
			return models.CheckResult{Status: models.StatusTimeout, Error: "timeout"}
		}
		return models.CheckResult{Status: models.StatusUnknown, Error: err.Error()}
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
