package router

import (
	"testing"

	"github.com/sslproxymanager/core/internal/config"
)

func TestMatch_LongestPrefixWins(t *testing.T) {
	reg := NewRegistry(config.ListenRule{Routes: []config.Route{
		{ID: "root", Path: "/", Enabled: true},
		{ID: "api", Path: "/api", Enabled: true},
		{ID: "api-v2", Path: "/api/v2", Enabled: true},
	}})

	route, ok := reg.Match("example.com", "/api/v2/users")
	if !ok || route.ID != "api-v2" {
		t.Fatalf("expected api-v2, got %q (ok=%v)", route.ID, ok)
	}
}

func TestMatch_HostScoping(t *testing.T) {
	reg := NewRegistry(config.ListenRule{Routes: []config.Route{
		{ID: "a", Host: "a.example.com", Path: "/", Enabled: true},
		{ID: "b", Host: "b.example.com", Path: "/", Enabled: true},
	}})

	route, ok := reg.Match("b.example.com:8443", "/anything")
	if !ok || route.ID != "b" {
		t.Fatalf("expected b, got %q (ok=%v)", route.ID, ok)
	}
}

func TestMatch_HostScopedBeatsLongerUnscoped(t *testing.T) {
	reg := NewRegistry(config.ListenRule{Routes: []config.Route{
		{ID: "unscoped-long", Path: "/api/v1", Enabled: true},
		{ID: "host-scoped-short", Host: "example.com", Path: "/api", Enabled: true},
	}})

	route, ok := reg.Match("example.com", "/api/v1/users")
	if !ok || route.ID != "host-scoped-short" {
		t.Fatalf("expected host-scoped-short, got %q (ok=%v)", route.ID, ok)
	}
}

func TestMatch_NoMatch(t *testing.T) {
	reg := NewRegistry(config.ListenRule{Routes: []config.Route{
		{ID: "a", Host: "a.example.com", Path: "/", Enabled: true},
	}})
	if _, ok := reg.Match("other.example.com", "/"); ok {
		t.Fatal("expected no match for unrelated host")
	}
}

func TestMatch_DisabledRoutesExcluded(t *testing.T) {
	reg := NewRegistry(config.ListenRule{Routes: []config.Route{
		{ID: "a", Path: "/", Enabled: false},
	}})
	if _, ok := reg.Match("any", "/"); ok {
		t.Fatal("expected disabled route to be excluded")
	}
}
