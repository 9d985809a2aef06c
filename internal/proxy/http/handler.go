package proxyhttp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sslproxymanager/core/internal/config"
	"github.com/sslproxymanager/core/internal/core/constants"
	"github.com/sslproxymanager/core/internal/core/domain"
	"github.com/sslproxymanager/core/internal/util"
)

// ServeHTTP runs the per-request pipeline: route match, access control, rate
// limiting, Basic auth, static/SPA fallback, then the reverse proxy itself.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := util.GenerateRequestID()

	clientIP := l.gate.DeriveClientIP(r.RemoteAddr, r.Header)
	clientIPStr := clientIP.String()

	route, ok := l.registry.Match(r.Host, r.URL.Path)
	if !ok {
		l.reject(w, r, start, requestID, clientIPStr, "", domain.KindRouteNotFound, "no route matched")
		return
	}
	rs := l.routes[route.ID]

	if l.global.HTTPAccessControlEnabled {
		if !l.gate.IsAllowedFast(clientIP, l.global.AllowAllLan, l.global.AllowAllIP) {
			l.reject(w, r, start, requestID, clientIPStr, route.ID, domain.KindAccessDenied, "client not allowed")
			return
		}
	}

	if l.rule.RateLimit != nil {
		allowed, banTriggered := l.gate.AllowRate(l.rule.ID, clientIP, l.rule.RateLimit.RPS, l.rule.RateLimit.Burst, l.rule.RateLimit.BanSeconds)
		if !allowed {
			if banTriggered {
				l.gate.Blacklist(clientIP, "rate limit exceeded on "+l.rule.ID, l.rule.RateLimit.BanSeconds)
			}
			l.reject(w, r, start, requestID, clientIPStr, route.ID, domain.KindRateLimited, "rate limit exceeded")
			return
		}
	}

	if l.rule.BasicAuth.Enabled && !route.ExcludeBasicAuth {
		if !checkBasicAuth(r, l.rule.BasicAuth) {
			w.Header().Set(constants.HeaderWWWAuthenticate, constants.BasicAuthRealm)
			l.reject(w, r, start, requestID, clientIPStr, route.ID, domain.KindAuthRequired, "basic auth required")
			return
		}
	}

	if route.StaticDir != "" {
		trimmed := strings.TrimPrefix(r.URL.Path, route.Path)
		if serveStatic(w, r, route.StaticDir, trimmed) {
			l.recordAccess(r, start, requestID, clientIPStr, route.ID, "", http.StatusOK)
			return
		}
		l.reject(w, r, start, requestID, clientIPStr, route.ID, domain.KindStaticNotFound, "static file not found")
		return
	}

	l.proxyRequest(w, r, rs, start, requestID, clientIPStr)
}

func checkBasicAuth(r *http.Request, auth config.BasicAuth) bool {
	user, pass, ok := r.BasicAuth()
	return ok && user == auth.User && pass == auth.Pass
}

// reject writes a categorised error response and still records the request
// in the metrics core and access log.
func (l *Listener) reject(w http.ResponseWriter, r *http.Request, start time.Time, requestID, clientIP, routeID string, kind domain.Kind, reason string) {
	status := kind.StatusCode()
	http.Error(w, reason, status)
	l.recordAccess(r, start, requestID, clientIP, routeID, "", status)
}

// proxyRequest picks an upstream, builds the outbound request, and streams
// the response back, applying any configured body-replace rules.
func (l *Listener) proxyRequest(w http.ResponseWriter, r *http.Request, rs *routeState, start time.Time, requestID, clientIP string) {
	upstreamURL, ok := l.balancer.Select(rs.route.ID, rs.upstreams)
	if !ok {
		l.reject(w, r, start, requestID, clientIP, rs.route.ID, domain.KindUpstreamError, "no upstream available")
		return
	}

	serverPort := serverPortFromContext(r.Context())
	upstreamURL = expandUpstreamURL(upstreamURL, serverPort)

	trimmedPath := strings.TrimPrefix(r.URL.Path, rs.route.Path)
	basePath := rs.route.ProxyPassPath
	if basePath == "" {
		basePath = trimmedPath
	} else {
		basePath = util.JoinURLPath(basePath, trimmedPath)
	}
	targetPath := applyRewrites(basePath, rs.rewrites)
	target := util.JoinURLPath(util.NormaliseBaseURL(upstreamURL), targetPath)
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	proto := "http"
	if r.TLS != nil {
		proto = "https"
	}

	if l.global.MaxBodySize > 0 && r.ContentLength > l.global.MaxBodySize {
		l.reject(w, r, start, requestID, clientIP, rs.route.ID, domain.KindBadRequestBody, "request body exceeds max_body_size")
		return
	}

	var body io.Reader = capReader(r.Body, l.global.MaxBodySize)
	if len(rs.reqBody) > 0 || !l.global.StreamProxyStreaming {
		buf := bodyBufferPool.Get()
		_, err := buf.ReadFrom(body)
		if err != nil {
			bodyBufferPool.Put(buf)
			if errors.Is(err, errBodyTooLarge) {
				l.reject(w, r, start, requestID, clientIP, rs.route.ID, domain.KindBadRequestBody, "request body exceeds max_body_size")
				return
			}
			l.reject(w, r, start, requestID, clientIP, rs.route.ID, domain.KindBadRequestBody, "failed to read request body")
			return
		}
		raw := buf.Bytes()
		if len(rs.reqBody) > 0 {
			raw = applyBodyReplaces(raw, rs.reqBody)
		}
		body = bytes.NewReader(append([]byte(nil), raw...))
		bodyBufferPool.Put(buf)
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, body)
	if err != nil {
		l.reject(w, r, start, requestID, clientIP, rs.route.ID, domain.KindUpstreamError, "failed to build upstream request")
		return
	}
	host := hostWithoutPort(r.Host)
	outReq.Header = buildUpstreamHeaders(r.Header, rs.route, l.rule.BasicAuth, clientIP, host, proto, serverPort)

	client := l.follow
	if !rs.route.FollowRedirects {
		client = l.noFollow
	}

	resp, err := client.Do(outReq)
	if err != nil {
		l.reject(w, r, start, requestID, clientIP, rs.route.ID, domain.KindUpstreamError, "upstream request failed")
		return
	}
	defer resp.Body.Close()

	bytesWritten, statusOverride := l.writeResponse(w, resp, rs)
	status := resp.StatusCode
	if statusOverride != 0 {
		status = statusOverride
	}
	l.recordAccessWithUpstream(r, start, requestID, clientIP, rs.route.ID, upstreamURL, status, bytesWritten)
}

// writeResponse copies resp back to w, buffering only when a response
// body-replace rule exists or streaming is disabled. It returns the bytes
// written and, when the upstream response exceeded max_response_body_size,
// the overridden status code the access log should record (the headers
// already written to w cannot be changed at that point).
func (l *Listener) writeResponse(w http.ResponseWriter, resp *http.Response, rs *routeState) (int, int) {
	for k, vv := range resp.Header {
		if _, skip := hopByHop[strings.ToLower(k)]; skip {
			continue
		}
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}

	src := capReader(resp.Body, l.global.MaxResponseBodySize)

	if len(rs.respBody) == 0 && l.global.StreamProxyStreaming {
		w.WriteHeader(resp.StatusCode)
		n, err := io.Copy(w, src)
		if errors.Is(err, errBodyTooLarge) {
			l.log.Error("upstream response exceeded max_response_body_size, truncated", "limit", l.global.MaxResponseBodySize)
			return int(n), domain.KindUpstreamTooLarge.StatusCode()
		}
		return int(n), 0
	}

	buf := bodyBufferPool.Get()
	defer bodyBufferPool.Put(buf)
	if _, err := buf.ReadFrom(src); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			w.WriteHeader(domain.KindUpstreamTooLarge.StatusCode())
			return 0, domain.KindUpstreamTooLarge.StatusCode()
		}
		w.WriteHeader(http.StatusBadGateway)
		return 0, http.StatusBadGateway
	}
	raw := buf.Bytes()
	if len(rs.respBody) > 0 {
		raw = applyBodyReplaces(raw, rs.respBody)
	}
	w.Header().Set(constants.HeaderContentType, resp.Header.Get(constants.HeaderContentType))
	w.WriteHeader(resp.StatusCode)
	n, _ := w.Write(raw)
	return n, 0
}

// serverPortFromContext reads the actual bound-listener port off the
// connection's local address, so $server_port reflects the rule's real
// ListenAddrs entry even when a rule binds more than one address/port.
func serverPortFromContext(ctx context.Context) string {
	if addr, ok := ctx.Value(http.LocalAddrContextKey).(net.Addr); ok {
		if _, port, err := net.SplitHostPort(addr.String()); err == nil {
			return port
		}
	}
	return ""
}

// hostWithoutPort strips a ":port" suffix from a Host header value, the way
// nginx's $host variable excludes the port.
func hostWithoutPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func (l *Listener) recordAccess(r *http.Request, start time.Time, requestID, clientIP, routeID, upstream string, status int) {
	l.recordAccessWithUpstream(r, start, requestID, clientIP, routeID, upstream, status, 0)
}

func (l *Listener) recordAccessWithUpstream(r *http.Request, start time.Time, requestID, clientIP, routeID, upstream string, status, bytesWritten int) {
	latency := time.Since(start)

	if l.metrics != nil {
		l.metrics.Enqueue(domain.RequestLog{
			Timestamp:    start.Unix(),
			ListenAddr:   l.rule.ID,
			ClientIP:     clientIP,
			RemoteIP:     r.RemoteAddr,
			Method:       r.Method,
			Path:         r.URL.Path,
			Host:         r.Host,
			Status:       status,
			Upstream:     upstream,
			LatencyMs:    float64(latency.Microseconds()) / 1000.0,
			UserAgent:    r.UserAgent(),
			Referer:      r.Referer(),
			MatchedRoute: routeID,
		})
	}

	l.log.Info("request",
		"request_id", requestID,
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"bytes", bytesWritten,
		"latency_ms", latency.Milliseconds(),
		"client_ip", clientIP,
		"route", routeID,
		"upstream", upstream,
	)
}
