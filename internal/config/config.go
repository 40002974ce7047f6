package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"pulsemon/internal/models"
)

// ServiceDecl is one monitored service, parsed from SERVICE_URL_<name>.
type ServiceDecl struct {
	Name   string
	Target models.Target
}

type Config struct {
	Addr         string
	DBPath       string
	DockerSocket string

	LoopInterval    time.Duration
	StatusThreshold int
	CheckTimeout    time.Duration

	PingURL          string
	HeartbeatURL     string
	HeartbeatSecret  string
	HeartbeatTimeout time.Duration
	AlertWebhookURL  string
	DNSOverrideIP    string

	TargetDataPoints int
	LogLevel         string

	Services []ServiceDecl
}

// Load reads configuration from the environment. Malformed service
// declarations are the one startup condition that fails loudly.
func Load() (Config, error) {
	cfg := Config{
		Addr:             getenv("APP_ADDR", ":8080"),
		DBPath:           getenv("SQLITE_DB_PATH", "data/metrics.db"),
		DockerSocket:     getenv("DOCKER_SOCKET", "/var/run/docker.sock"),
		LoopInterval:     getenvDuration("LOOP_INTERVAL", 10*time.Second),
		StatusThreshold:  getenvInt("STATUS_CHANGE_THRESHOLD", 4),
		CheckTimeout:     getenvDuration("SERVICE_TIMEOUT", 2*time.Second),
		PingURL:          getenv("PING_URL", "http://www.google.com"),
		HeartbeatURL:     os.Getenv("HEARTBEAT_URL"),
		HeartbeatSecret:  os.Getenv("SECRET_KEY"),
		HeartbeatTimeout: getenvDuration("HEARTBEAT_TIMEOUT", 6*time.Second),
		AlertWebhookURL:  os.Getenv("ALERT_WEBHOOK_URL"),
		DNSOverrideIP:    os.Getenv("INTERNAL_DNS_OVERRIDE_IP"),
		TargetDataPoints: getenvInt("TARGET_DATA_POINTS", 30),
		LogLevel:         getenv("LOG_LEVEL", "info"),
	}
	if cfg.LoopInterval <= 0 {
		return Config{}, fmt.Errorf("LOOP_INTERVAL must be positive")
	}
	if cfg.StatusThreshold < 1 {
		return Config{}, fmt.Errorf("STATUS_CHANGE_THRESHOLD must be at least 1")
	}
	services, err := parseServices(os.Environ())
	if err != nil {
		return Config{}, err
	}
	cfg.Services = services
	return cfg, nil
}

// parseServices discovers service declarations of the form
// SERVICE_URL_<name>=<spec>, with optional SERVICE_HEADERS_<name>=K:V,K:V.
func parseServices(environ []string) ([]ServiceDecl, error) {
	const urlPrefix = "SERVICE_URL_"
	var out []ServiceDecl
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, urlPrefix) {
			continue
		}
		name := k[len(urlPrefix):]
		if name == "" {
			continue
		}
		headers, err := parseHeaders(os.Getenv("SERVICE_HEADERS_" + name))
		if err != nil {
			return nil, fmt.Errorf("SERVICE_HEADERS_%s: %w", name, err)
		}
		target, err := models.ParseTarget(v, headers)
		if err != nil {
			return nil, fmt.Errorf("SERVICE_URL_%s: %w", name, err)
		}
		out = append(out, ServiceDecl{Name: name, Target: target})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func parseHeaders(s string) (map[string]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	headers := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid header pair %q, expected Key:Value", pair)
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return headers, nil
}

// HasHeartbeat reports whether the controller heartbeat is configured.
func (c Config) HasHeartbeat() bool {
	return c.HeartbeatURL != "" && c.HeartbeatSecret != ""
}

// InternalHostnames lists the hostnames of declared HTTP services, used by
// the smart network client to decide which hosts the DNS override applies to.
func (c Config) InternalHostnames() []string {
	var hosts []string
	for _, s := range c.Services {
		if t, ok := s.Target.(models.HTTPTarget); ok {
			if h := hostOf(t.URL); h != "" {
				hosts = append(hosts, h)
			}
		}
	}
	return hosts
}

func hostOf(rawURL string) string {
	rest, ok := strings.CutPrefix(rawURL, "https://")
	if !ok {
		rest, ok = strings.CutPrefix(rawURL, "http://")
		if !ok {
			return ""
		}
	}
	for i, r := range rest {
		if r == '/' || r == ':' || r == '?' {
			return rest[:i]
		}
	}
	return rest
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func getenvDuration(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return d
	}
	return dur
}
