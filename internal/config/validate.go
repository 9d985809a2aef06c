package config

import (
	"fmt"
	"net"
	"net/url"

	"github.com/sslproxymanager/core/internal/core/domain"
)

// Validate runs the fail-fast startup checks the teacher's config loader
// never had to: duplicate (listen_port, udp) tuples across stream servers,
// routes with no proxy_pass target, unparseable upstream host:port/URL
// values, and negative durations. It returns the first problem found as a
// *domain.ConfigValidationError.
func Validate(cfg *Config) error {
	if err := validateStreamServers(cfg.Stream.Servers); err != nil {
		return err
	}
	if err := validateHTTPRules(cfg.HTTP); err != nil {
		return err
	}
	return validateWSRules(cfg.WS)
}

type streamKey struct {
	port int
	udp  bool
}

func validateStreamServers(servers []StreamServer) error {
	seen := make(map[streamKey]string, len(servers))
	for _, s := range servers {
		if !s.Enabled {
			continue
		}

		key := streamKey{port: s.ListenPort, udp: s.UDP}
		if prior, ok := seen[key]; ok {
			return domain.NewConfigValidationError("stream.servers[].listen_port", s.ListenPort,
				fmt.Sprintf("duplicate listen_port %d (udp=%v) already used by stream server %q", s.ListenPort, s.UDP, prior))
		}
		seen[key] = s.Name

		if len(s.Upstreams) == 0 {
			return domain.NewConfigValidationError("stream.servers["+s.Name+"].upstreams", nil, "stream server has no upstreams configured")
		}
		for _, u := range s.Upstreams {
			if _, _, err := net.SplitHostPort(u.Addr); err != nil {
				return domain.NewConfigValidationError("stream.servers["+s.Name+"].upstreams.addr", u.Addr,
					fmt.Sprintf("not a parseable host:port: %v", err))
			}
		}
		if s.ProxyConnectTimeout < 0 || s.ProxyTimeout < 0 || s.FailTimeout < 0 {
			return domain.NewConfigValidationError("stream.servers["+s.Name+"]", s.Name, "timeouts must be non-negative durations")
		}
	}
	return nil
}

func validateHTTPRules(rules []ListenRule) error {
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if len(rule.ListenAddrs) == 0 {
			return domain.NewConfigValidationError("http["+rule.ID+"].listen_addrs", nil, "listen rule has no listen_addrs")
		}

		seenRoute := make(map[string]bool, len(rule.Routes))
		for _, route := range rule.Routes {
			if !route.Enabled {
				continue
			}
			if route.ID != "" {
				if seenRoute[route.ID] {
					return domain.NewConfigValidationError("http["+rule.ID+"].routes[].id", route.ID, "duplicate route id within listen rule")
				}
				seenRoute[route.ID] = true
			}

			if route.StaticDir == "" && len(route.Upstreams) == 0 {
				return domain.NewConfigValidationError("http["+rule.ID+"].routes["+route.ID+"]", route.ID,
					"route has neither static_dir nor any upstreams to proxy_pass to")
			}
			for _, up := range route.Upstreams {
				if up.URL == "" {
					return domain.NewConfigValidationError("http["+rule.ID+"].routes["+route.ID+"].upstreams.url", up.URL, "upstream url must not be empty")
				}
				if _, err := url.ParseRequestURI(up.URL); err != nil {
					return domain.NewConfigValidationError("http["+rule.ID+"].routes["+route.ID+"].upstreams.url", up.URL,
						fmt.Sprintf("not a parseable URL: %v", err))
				}
			}
		}
	}
	return nil
}

func validateWSRules(rules []WSRule) error {
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if len(rule.ListenAddrs) == 0 {
			return domain.NewConfigValidationError("ws["+rule.ID+"].listen_addrs", nil, "ws rule has no listen_addrs")
		}
		if len(rule.Routes) == 0 {
			return domain.NewConfigValidationError("ws["+rule.ID+"].routes", nil, "ws rule has no routes configured")
		}

		for _, route := range rule.Routes {
			if !route.Enabled {
				continue
			}
			if route.UpstreamURL == "" {
				return domain.NewConfigValidationError("ws["+rule.ID+"].routes["+route.ID+"].upstream_url", route.UpstreamURL,
					"missing upstream_url (unknown proxy_pass target)")
			}
			if _, err := url.ParseRequestURI(route.UpstreamURL); err != nil {
				return domain.NewConfigValidationError("ws["+rule.ID+"].routes["+route.ID+"].upstream_url", route.UpstreamURL,
					fmt.Sprintf("not a parseable URL: %v", err))
			}
		}
	}
	return nil
}
