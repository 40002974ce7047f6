package models

import (
	"fmt"
	"net/url"
	"strings"
)

// Target is the parsed form of a service declaration. Specs are parsed once
// at configuration time; checkers dispatch on the concrete type instead of
// re-sniffing string prefixes every cycle.
type Target interface {
	Spec() string
}

// HTTPTarget probes a URL over HTTP(S), optionally with custom headers.
type HTTPTarget struct {
	URL     string
	Headers map[string]string
}

func (t HTTPTarget) Spec() string { return t.URL }

// ContainerTarget probes a docker container's running state by name.
type ContainerTarget struct {
	Name string
}

func (t ContainerTarget) Spec() string { return "docker:" + t.Name }

// ParseTarget turns a declared service spec into a tagged target.
// Accepted forms: http(s)://... or docker:<container-name>.
func ParseTarget(spec string, headers map[string]string) (Target, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty service spec")
	}
	if name, ok := strings.CutPrefix(spec, "docker:"); ok {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("docker target missing container name")
		}
		return ContainerTarget{Name: name}, nil
	}
	u, err := url.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse service url %q: %w", spec, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported service scheme %q in %q", u.Scheme, spec)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("service url %q has no host", spec)
	}
	return HTTPTarget{URL: spec, Headers: headers}, nil
}
