package core

import (
	"net/url"
	"strings"
)

// OriginPolicy classifies a request origin into the session or token flow.
type OriginPolicy struct {
	trusted []origin
}

type origin struct {
	host string
	port string
}

func NewOriginPolicy(domains []string) OriginPolicy {
	p := OriginPolicy{}
	for _, d := range domains {
		if o, ok := parseOrigin(d); ok {
			p.trusted = append(p.trusted, o)
		}
	}
	return p
}

// Trusted reports whether raw (an Origin or Referer header value, or a bare
// host[:port]) matches a configured stateful domain. An entry without a port
// matches every port of that host.
func (p OriginPolicy) Trusted(raw string) bool {
	o, ok := parseOrigin(raw)
	if !ok {
		return false
	}
	for _, t := range p.trusted {
		if t.host != o.host {
			continue
		}
		if t.port == "" || t.port == o.port {
			return true
		}
	}
	return false
}

func (p OriginPolicy) Classify(raw string) Flow {
	if p.Trusted(raw) {
		return FlowSession
	}
	return FlowToken
}

// NormalizeOrigin reduces raw to lower-cased host[:port], or "" when it has no host.
func NormalizeOrigin(raw string) string {
	o, ok := parseOrigin(raw)
	if !ok {
		return ""
	}
	if o.port == "" {
		return o.host
	}
	return o.host + ":" + o.port
}

func parseOrigin(raw string) (origin, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return origin{}, false
	}
	if !strings.Contains(raw, "://") {
		raw = "//" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return origin{}, false
	}
	return origin{
		host: strings.ToLower(u.Hostname()),
		port: u.Port(),
	}, true
}
