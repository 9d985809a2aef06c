package proxyhttp

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/sslproxymanager/core/internal/config"
	"github.com/sslproxymanager/core/internal/core/constants"
)

var hopByHop = func() map[string]struct{} {
	m := make(map[string]struct{}, len(constants.HopByHopHeaders))
	for _, h := range constants.HopByHopHeaders {
		m[strings.ToLower(h)] = struct{}{}
	}
	return m
}()

// buildUpstreamHeaders clones the inbound header set, strips hop-by-hop
// fields, stamps X-Forwarded-For/-Real-IP/-Proto, clears Accept-Encoding so
// the upstream never compresses a response this proxy can't re-compress for
// the client, applies the route's SetHeaders/RemoveHeaders in order (remove
// first, then set, matching the teacher's header-pipeline ordering), and
// strips Authorization when Basic auth is enabled without forward_header.
func buildUpstreamHeaders(src http.Header, route config.Route, auth config.BasicAuth, clientIP, host, proto, serverPort string) http.Header {
	dst := make(http.Header, len(src))
	for k, vv := range src {
		if _, skip := hopByHop[strings.ToLower(k)]; skip {
			continue
		}
		dst[k] = append([]string(nil), vv...)
	}

	xff := clientIP
	if prior := dst.Get(constants.HeaderXForwardedFor); prior != "" {
		xff = prior + ", " + clientIP
	}
	dst.Set(constants.HeaderXForwardedFor, xff)
	dst.Set(constants.HeaderXForwardedProto, proto)
	dst.Set(constants.HeaderXRealIP, clientIP)
	dst.Set(constants.HeaderAcceptEncoding, "")

	for _, name := range route.RemoveHeaders {
		dst.Del(name)
	}
	for _, kv := range route.SetHeaders {
		dst.Set(kv.Name, expandHeaderValue(kv.Value, clientIP, host, proto, serverPort, xff))
	}

	if auth.Enabled && !auth.ForwardHeader {
		dst.Del(constants.HeaderAuthorization)
	}

	return dst
}

// expandHeaderValue substitutes the $remote_addr/$scheme/$host/
// $proxy_add_x_forwarded_for/$server_port variables a route's set_headers
// rule may reference.
func expandHeaderValue(value, clientIP, host, proto, serverPort, xff string) string {
	replacer := strings.NewReplacer(
		"$remote_addr", clientIP,
		"$scheme", proto,
		"$host", host,
		"$proxy_add_x_forwarded_for", xff,
		"$server_port", serverPort,
	)
	return replacer.Replace(value)
}

// expandUpstreamURL substitutes $server_port inside an upstream URL, the one
// variable the spec allows there in addition to the header set.
func expandUpstreamURL(url, serverPort string) string {
	return strings.ReplaceAll(url, "$server_port", serverPort)
}

// compiledRewrite is a URLRewriteRule with its pattern pre-compiled, built
// once per route at registry build time rather than per request.
type compiledRewrite struct {
	pattern     *regexp.Regexp
	replacement string
}

func compileRewrites(rules []config.RewriteRule) []compiledRewrite {
	out := make([]compiledRewrite, 0, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			continue
		}
		out = append(out, compiledRewrite{pattern: re, replacement: r.Replacement})
	}
	return out
}

func applyRewrites(path string, rules []compiledRewrite) string {
	for _, r := range rules {
		if r.pattern.MatchString(path) {
			return r.pattern.ReplaceAllString(path, r.replacement)
		}
	}
	return path
}

// compiledBodyReplace mirrors compiledRewrite for request/response body
// substitution rules.
type compiledBodyReplace struct {
	pattern  *regexp.Regexp
	find     string
	replace  string
	useRegex bool
}

func compileBodyReplaces(rules []config.BodyReplaceRule) []compiledBodyReplace {
	out := make([]compiledBodyReplace, 0, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		c := compiledBodyReplace{find: r.Find, replace: r.Replace, useRegex: r.UseRegex}
		if r.UseRegex {
			re, err := regexp.Compile(r.Find)
			if err != nil {
				continue
			}
			c.pattern = re
		}
		out = append(out, c)
	}
	return out
}

func applyBodyReplaces(body []byte, rules []compiledBodyReplace) []byte {
	for _, r := range rules {
		if r.useRegex {
			body = r.pattern.ReplaceAll(body, []byte(r.replace))
		} else {
			body = []byte(strings.ReplaceAll(string(body), r.find, r.replace))
		}
	}
	return body
}
