package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound is returned when a named container does not exist.
var ErrNotFound = errors.New("container not found")

// Client talks to the container runtime over its local control socket.
type Client struct {
	http *http.Client
}

type containerSummary struct {
	ID    string   `json:"Id"`
	Names []string `json:"Names"`
	State string   `json:"State"`
}

// ContainerState is the slice of inspect output the agent cares about.
type ContainerState struct {
	Status  string
	Running bool
}

func NewClient(socketPath string) *Client {
	dialer := &net.Dialer{Timeout: 3 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{http: &http.Client{Transport: transport, Timeout: 10 * time.Second}}
}

func (c *Client) Ping(ctx context.Context) error {
	_, _, err := c.do(ctx, "/_ping")
	return err
}

// RunningCount returns the number of running containers, or -1 when the
// runtime socket is unreachable.
func (c *Client) RunningCount(ctx context.Context) int {
	b, status, err := c.do(ctx, "/containers/json")
	if err != nil || status >= 300 {
		return -1
	}
	var out []containerSummary
	if err := json.Unmarshal(b, &out); err != nil {
		return -1
	}
	return len(out)
}

// Inspect reports the state of a named container.
func (c *Client) Inspect(ctx context.Context, name string) (ContainerState, error) {
	b, status, err := c.do(ctx, "/containers/"+name+"/json")
	if err != nil {
		return ContainerState{}, err
	}
	if status == http.StatusNotFound {
		return ContainerState{}, ErrNotFound
	}
	if status >= 300 {
		return ContainerState{}, fmt.Errorf("docker inspect %s: status %d", name, status)
	}
	var out struct {
		State struct {
			Status  string `json:"Status"`
			Running bool   `json:"Running"`
		} `json:"State"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return ContainerState{}, err
	}
	return ContainerState{Status: out.State.Status, Running: out.State.Running}, nil
}

func (c *Client) do(ctx context.Context, p string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix"+p, nil)
	if err != nil {
		return nil, 0, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, 10<<20))
	if err != nil {
		return nil, 0, err
	}
	if res.StatusCode >= 500 {
		msg := strings.TrimSpace(string(b))
		if msg == "" {
			msg = res.Status
		}
		return nil, res.StatusCode, fmt.Errorf("docker api %s failed: %s", p, msg)
	}
	return b, res.StatusCode, nil
}
