package app

import (
	"net/url"
	"strings"
)

// originHost strips scheme and path from an origin, leaving host[:port].
func originHost(origin string) string {
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		return u.Host
	}
	return origin
}

// allowOrigins builds a cors origin check from patterns such as
// "studio.example.com", "*.example.com" or "localhost:*".
func allowOrigins(patterns []string) func(string) bool {
	hosts := make([]string, 0, len(patterns))
	for _, p := range patterns {
		hosts = append(hosts, originHost(p))
	}
	return func(origin string) bool {
		host := originHost(origin)
		for _, p := range hosts {
			switch {
			case p == host:
				return true
			case strings.HasPrefix(p, "*.") && strings.HasSuffix(host, p[1:]):
				return true
			case strings.HasSuffix(p, ":*") && strings.HasPrefix(host, strings.TrimSuffix(p, "*")):
				return true
			}
		}
		return false
	}
}
