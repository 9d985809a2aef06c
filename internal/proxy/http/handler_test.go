package proxyhttp

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sslproxymanager/core/internal/config"
	"github.com/sslproxymanager/core/internal/core/domain"
	"github.com/sslproxymanager/core/internal/core/ports"
	"github.com/sslproxymanager/core/internal/logger"
	"github.com/sslproxymanager/core/theme"
)

type fakeGate struct {
	allow       bool
	rateAllow   bool
	banTriggered bool
}

func (f *fakeGate) DeriveClientIP(remoteAddr string, header http.Header) net.IP {
	return net.ParseIP("203.0.113.9")
}
func (f *fakeGate) IsAllowedFast(ip net.IP, allowAllLan, allowAllIP bool) bool { return f.allow }
func (f *fakeGate) AllowRate(listenerKey string, ip net.IP, rps float64, burst int, banSeconds int64) (bool, bool) {
	return f.rateAllow, f.banTriggered
}
func (f *fakeGate) Blacklist(ip net.IP, reason string, ttlSeconds int64) {}

type fakeBalancer struct{ url string }

func (b *fakeBalancer) Select(routeID string, upstreams []domain.UpstreamState) (string, bool) {
	if len(upstreams) == 0 {
		return "", false
	}
	return b.url, true
}
func (b *fakeBalancer) Reset() {}

type fakeMetrics struct{ count int }

func (m *fakeMetrics) Enqueue(rec domain.RequestLog)   { m.count++ }
func (m *fakeMetrics) Snapshot() ports.MetricsPayload  { return ports.MetricsPayload{} }
func (m *fakeMetrics) Close()                          {}

func newTestListener(t *testing.T, rule config.ListenRule, gate ports.AccessGate, bal ports.Balancer, mc ports.MetricsCollector) *Listener {
	t.Helper()
	return newTestListenerWithGlobal(t, rule, config.GlobalConfig{HTTPAccessControlEnabled: true, StreamProxyStreaming: true}, gate, bal, mc)
}

func newTestListenerWithGlobal(t *testing.T, rule config.ListenRule, global config.GlobalConfig, gate ports.AccessGate, bal ports.Balancer, mc ports.MetricsCollector) *Listener {
	t.Helper()
	log := logger.NewStyledLogger(discardLogger(), theme.Default())
	return New(rule, global, gate, bal, mc, log)
}

func TestServeHTTP_AccessDenied(t *testing.T) {
	rule := config.ListenRule{ID: "r1", Routes: []config.Route{{ID: "root", Path: "/", Enabled: true}}}
	lst := newTestListener(t, rule, &fakeGate{allow: false}, &fakeBalancer{}, &fakeMetrics{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	lst.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestServeHTTP_RateLimited(t *testing.T) {
	rule := config.ListenRule{
		ID:        "r1",
		Routes:    []config.Route{{ID: "root", Path: "/", Enabled: true}},
		RateLimit: &config.RateLimit{RPS: 1, Burst: 1},
	}
	lst := newTestListener(t, rule, &fakeGate{allow: true, rateAllow: false}, &fakeBalancer{}, &fakeMetrics{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	lst.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
}

func TestServeHTTP_NoRouteMatch(t *testing.T) {
	rule := config.ListenRule{ID: "r1", Routes: []config.Route{{ID: "a", Host: "a.example.com", Path: "/", Enabled: true}}}
	lst := newTestListener(t, rule, &fakeGate{allow: true}, &fakeBalancer{}, &fakeMetrics{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "other.example.com"
	lst.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestServeHTTP_ProxiesToUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer upstream.Close()

	rule := config.ListenRule{
		ID: "r1",
		Routes: []config.Route{{
			ID: "root", Path: "/", Enabled: true, FollowRedirects: true,
			Upstreams: []config.Upstream{{URL: upstream.URL, Weight: 1}},
		}},
	}
	metrics := &fakeMetrics{}
	lst := newTestListener(t, rule, &fakeGate{allow: true}, &fakeBalancer{url: upstream.URL}, metrics)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	lst.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "hello" {
		t.Errorf("expected body %q, got %q", "hello", w.Body.String())
	}
	if metrics.count != 1 {
		t.Errorf("expected one metrics record, got %d", metrics.count)
	}
}

func TestServeHTTP_RequestBodyTooLargeRejected(t *testing.T) {
	rule := config.ListenRule{
		ID: "r1",
		Routes: []config.Route{{
			ID: "root", Path: "/", Enabled: true,
			Upstreams: []config.Upstream{{URL: "http://unused.invalid", Weight: 1}},
		}},
	}
	global := config.GlobalConfig{HTTPAccessControlEnabled: true, StreamProxyStreaming: true, MaxBodySize: 4}
	lst := newTestListenerWithGlobal(t, rule, global, &fakeGate{allow: true}, &fakeBalancer{url: "http://unused.invalid"}, &fakeMetrics{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("this body is too long"))
	lst.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized request body, got %d", w.Code)
	}
}

func TestServeHTTP_ResponseBodyTooLargeRecorded502(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("this response body is too long for the configured cap"))
	}))
	defer upstream.Close()

	rule := config.ListenRule{
		ID: "r1",
		Routes: []config.Route{{
			ID: "root", Path: "/", Enabled: true, FollowRedirects: true,
			Upstreams: []config.Upstream{{URL: upstream.URL, Weight: 1}},
		}},
	}
	global := config.GlobalConfig{HTTPAccessControlEnabled: true, StreamProxyStreaming: false, MaxResponseBodySize: 4}
	metrics := &fakeMetrics{}
	lst := newTestListenerWithGlobal(t, rule, global, &fakeGate{allow: true}, &fakeBalancer{url: upstream.URL}, metrics)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	lst.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502 for oversized response body, got %d", w.Code)
	}
}

func TestServeHTTP_BuffersWhenStreamingDisabled(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer upstream.Close()

	rule := config.ListenRule{
		ID: "r1",
		Routes: []config.Route{{
			ID: "root", Path: "/", Enabled: true, FollowRedirects: true,
			Upstreams: []config.Upstream{{URL: upstream.URL, Weight: 1}},
		}},
	}
	global := config.GlobalConfig{HTTPAccessControlEnabled: true, StreamProxyStreaming: false}
	lst := newTestListenerWithGlobal(t, rule, global, &fakeGate{allow: true}, &fakeBalancer{url: upstream.URL}, &fakeMetrics{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	lst.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "hello" {
		t.Errorf("expected 200/hello when buffering a route with no body-replace rules, got %d/%q", w.Code, w.Body.String())
	}
}
