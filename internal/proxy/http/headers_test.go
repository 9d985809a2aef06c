package proxyhttp

import (
	"net/http"
	"testing"

	"github.com/sslproxymanager/core/internal/config"
)

func TestBuildUpstreamHeaders_StripsHopByHopAndStampsForwarded(t *testing.T) {
	src := http.Header{}
	src.Set("Connection", "keep-alive")
	src.Set("X-Custom", "value")

	route := config.Route{
		SetHeaders:    []config.HeaderKV{{Name: "X-Forwarded-Host", Value: "$remote_addr"}},
		RemoveHeaders: []string{"X-Custom"},
	}

	out := buildUpstreamHeaders(src, route, config.BasicAuth{}, "203.0.113.9", "example.com", "https", "8443")

	if out.Get("Connection") != "" {
		t.Error("expected Connection (hop-by-hop) to be stripped")
	}
	if out.Get("X-Custom") != "" {
		t.Error("expected X-Custom to be removed by RemoveHeaders")
	}
	if got := out.Get("X-Forwarded-For"); got != "203.0.113.9" {
		t.Errorf("expected X-Forwarded-For=203.0.113.9, got %q", got)
	}
	if got := out.Get("X-Forwarded-Proto"); got != "https" {
		t.Errorf("expected X-Forwarded-Proto=https, got %q", got)
	}
	if got := out.Get("X-Real-Ip"); got != "203.0.113.9" {
		t.Errorf("expected X-Real-IP=203.0.113.9, got %q", got)
	}
	if got := out.Get("Accept-Encoding"); got != "" {
		t.Errorf("expected Accept-Encoding cleared, got %q", got)
	}
	if got := out.Get("X-Forwarded-Host"); got != "203.0.113.9" {
		t.Errorf("expected $remote_addr expansion, got %q", got)
	}
}

func TestBuildUpstreamHeaders_AppendsExistingXFF(t *testing.T) {
	src := http.Header{}
	src.Set("X-Forwarded-For", "198.51.100.1")

	out := buildUpstreamHeaders(src, config.Route{}, config.BasicAuth{}, "203.0.113.9", "example.com", "http", "8080")
	if got := out.Get("X-Forwarded-For"); got != "198.51.100.1, 203.0.113.9" {
		t.Errorf("expected appended XFF chain, got %q", got)
	}
}

func TestBuildUpstreamHeaders_StripsAuthorizationWhenNotForwarded(t *testing.T) {
	src := http.Header{}
	src.Set("Authorization", "Basic dXNlcjpwYXNz")

	out := buildUpstreamHeaders(src, config.Route{}, config.BasicAuth{Enabled: true, ForwardHeader: false}, "203.0.113.9", "example.com", "http", "8080")
	if out.Get("Authorization") != "" {
		t.Error("expected Authorization stripped when basic auth enabled and forward_header is false")
	}
}

func TestBuildUpstreamHeaders_KeepsAuthorizationWhenForwarded(t *testing.T) {
	src := http.Header{}
	src.Set("Authorization", "Basic dXNlcjpwYXNz")

	out := buildUpstreamHeaders(src, config.Route{}, config.BasicAuth{Enabled: true, ForwardHeader: true}, "203.0.113.9", "example.com", "http", "8080")
	if out.Get("Authorization") == "" {
		t.Error("expected Authorization kept when forward_header is true")
	}
}

func TestExpandHeaderValue_AllVariables(t *testing.T) {
	got := expandHeaderValue("$remote_addr|$scheme|$host|$proxy_add_x_forwarded_for|$server_port", "203.0.113.9", "example.com", "https", "8443", "198.51.100.1, 203.0.113.9")
	want := "203.0.113.9|https|example.com|198.51.100.1, 203.0.113.9|8443"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestExpandUpstreamURL_SubstitutesServerPort(t *testing.T) {
	got := expandUpstreamURL("http://127.0.0.1:$server_port", "9000")
	if got != "http://127.0.0.1:9000" {
		t.Errorf("expected port substitution, got %q", got)
	}
}

func TestApplyRewrites_FirstMatchWins(t *testing.T) {
	rules := compileRewrites([]config.RewriteRule{
		{Pattern: `^/old/(.*)$`, Replacement: "/new/$1", Enabled: true},
		{Pattern: `^/old/.*$`, Replacement: "/unreachable", Enabled: true},
	})
	got := applyRewrites("/old/page", rules)
	if got != "/new/page" {
		t.Errorf("expected /new/page, got %q", got)
	}
}

func TestApplyBodyReplaces_PlainAndRegex(t *testing.T) {
	rules := compileBodyReplaces([]config.BodyReplaceRule{
		{Find: "foo", Replace: "bar", Enabled: true},
		{Find: `\d+`, Replace: "N", UseRegex: true, Enabled: true},
	})
	got := string(applyBodyReplaces([]byte("foo123"), rules))
	if got != "barN" {
		t.Errorf("expected barN, got %q", got)
	}
}
