// Package router matches an inbound request's host and path against a
// listen rule's routes: host match first, then longest path-prefix wins.
package router

import (
	"sort"
	"strings"

	"github.com/sslproxymanager/core/internal/config"
)

// Registry is the compiled, lookup-ready form of one ListenRule's routes.
// Built once at listener start and replaced wholesale on a restart, never
// mutated in place.
type Registry struct {
	routes []config.Route
}

// NewRegistry sorts rule's enabled routes by (has_host_constraint, path
// length) descending, so the first match encountered during a linear scan
// is always the highest-priority one: a host-scoped route beats any
// unscoped route regardless of path length, and within the same host
// scoping the longest path prefix wins.
func NewRegistry(rule config.ListenRule) *Registry {
	routes := make([]config.Route, 0, len(rule.Routes))
	for _, r := range rule.Routes {
		if r.Enabled {
			routes = append(routes, r)
		}
	}
	sort.SliceStable(routes, func(i, j int) bool {
		hi, hj := routes[i].Host != "", routes[j].Host != ""
		if hi != hj {
			return hi
		}
		return len(routes[i].Path) > len(routes[j].Path)
	})
	return &Registry{routes: routes}
}

// Match finds the route whose Host (if set) equals host and whose Path is a
// prefix of requestPath, returning the longest such prefix. An empty route
// Host matches any host.
func (r *Registry) Match(host, requestPath string) (config.Route, bool) {
	host = stripPort(host)
	for _, route := range r.routes {
		if route.Host != "" && !strings.EqualFold(route.Host, host) {
			continue
		}
		if route.Path == "" || strings.HasPrefix(requestPath, route.Path) {
			return route, true
		}
	}
	return config.Route{}, false
}

func stripPort(host string) string {
	if idx := strings.LastIndexByte(host, ':'); idx != -1 {
		if !strings.Contains(host[idx:], "]") { // not an IPv6 literal's trailing bracket
			return host[:idx]
		}
	}
	return host
}
