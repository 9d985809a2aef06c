package config

import "testing"

func TestValidate_AcceptsEmptyConfig(t *testing.T) {
	if err := Validate(&Config{}); err != nil {
		t.Fatalf("expected empty config to validate, got %v", err)
	}
}

func TestValidate_RejectsDuplicateStreamListenPort(t *testing.T) {
	cfg := &Config{Stream: StreamConfig{Servers: []StreamServer{
		{Name: "a", ListenPort: 9000, Enabled: true, Upstreams: []StreamUpstream{{Addr: "10.0.0.1:9000"}}},
		{Name: "b", ListenPort: 9000, Enabled: true, Upstreams: []StreamUpstream{{Addr: "10.0.0.2:9000"}}},
	}}}

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for duplicate listen_port/udp tuple")
	}
}

func TestValidate_AllowsSamePortDifferentProtocol(t *testing.T) {
	cfg := &Config{Stream: StreamConfig{Servers: []StreamServer{
		{Name: "tcp", ListenPort: 9000, UDP: false, Enabled: true, Upstreams: []StreamUpstream{{Addr: "10.0.0.1:9000"}}},
		{Name: "udp", ListenPort: 9000, UDP: true, Enabled: true, Upstreams: []StreamUpstream{{Addr: "10.0.0.1:9000"}}},
	}}}

	if err := Validate(cfg); err != nil {
		t.Fatalf("expected tcp/udp on the same port to validate, got %v", err)
	}
}

func TestValidate_RejectsStreamServerWithNoUpstreams(t *testing.T) {
	cfg := &Config{Stream: StreamConfig{Servers: []StreamServer{
		{Name: "empty", ListenPort: 9000, Enabled: true},
	}}}

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for stream server with no upstreams")
	}
}

func TestValidate_RejectsUnparseableStreamUpstreamAddr(t *testing.T) {
	cfg := &Config{Stream: StreamConfig{Servers: []StreamServer{
		{Name: "bad", ListenPort: 9000, Enabled: true, Upstreams: []StreamUpstream{{Addr: "not-a-host-port"}}},
	}}}

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unparseable host:port")
	}
}

func TestValidate_RejectsNegativeStreamTimeout(t *testing.T) {
	cfg := &Config{Stream: StreamConfig{Servers: []StreamServer{
		{Name: "bad", ListenPort: 9000, Enabled: true, Upstreams: []StreamUpstream{{Addr: "10.0.0.1:9000"}}, ProxyTimeout: -1},
	}}}

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative proxy_timeout")
	}
}

func TestValidate_RejectsRouteWithNoTarget(t *testing.T) {
	cfg := &Config{HTTP: []ListenRule{{
		ID:          "r1",
		Enabled:     true,
		ListenAddrs: []string{":8080"},
		Routes:      []Route{{ID: "root", Path: "/", Enabled: true}},
	}}}

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for route with neither static_dir nor upstreams")
	}
}

func TestValidate_AllowsStaticDirRoute(t *testing.T) {
	cfg := &Config{HTTP: []ListenRule{{
		ID:          "r1",
		Enabled:     true,
		ListenAddrs: []string{":8080"},
		Routes:      []Route{{ID: "root", Path: "/", Enabled: true, StaticDir: "/var/www"}},
	}}}

	if err := Validate(cfg); err != nil {
		t.Fatalf("expected static_dir route to validate, got %v", err)
	}
}

func TestValidate_RejectsDuplicateRouteID(t *testing.T) {
	cfg := &Config{HTTP: []ListenRule{{
		ID:          "r1",
		Enabled:     true,
		ListenAddrs: []string{":8080"},
		Routes: []Route{
			{ID: "dup", Path: "/a", Enabled: true, StaticDir: "/var/www/a"},
			{ID: "dup", Path: "/b", Enabled: true, StaticDir: "/var/www/b"},
		},
	}}}

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for duplicate route id")
	}
}

func TestValidate_RejectsUnparseableUpstreamURL(t *testing.T) {
	cfg := &Config{HTTP: []ListenRule{{
		ID:          "r1",
		Enabled:     true,
		ListenAddrs: []string{":8080"},
		Routes:      []Route{{ID: "root", Path: "/", Enabled: true, Upstreams: []Upstream{{URL: "://bad"}}}},
	}}}

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unparseable upstream url")
	}
}

func TestValidate_RejectsWSRouteWithMissingUpstreamURL(t *testing.T) {
	cfg := &Config{WS: []WSRule{{
		ID:          "ws1",
		Enabled:     true,
		ListenAddrs: []string{":8081"},
		Routes:      []WSRoute{{ID: "chat", Path: "/ws", Enabled: true}},
	}}}

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for ws route missing upstream_url")
	}
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	cfg := &Config{
		HTTP: []ListenRule{{
			ID:          "r1",
			Enabled:     true,
			ListenAddrs: []string{":8080"},
			Routes:      []Route{{ID: "root", Path: "/", Enabled: true, Upstreams: []Upstream{{URL: "http://10.0.0.1:8080"}}}},
		}},
		WS: []WSRule{{
			ID:          "ws1",
			Enabled:     true,
			ListenAddrs: []string{":8081"},
			Routes:      []WSRoute{{ID: "chat", Path: "/ws", Enabled: true, UpstreamURL: "ws://10.0.0.1:9000"}},
		}},
		Stream: StreamConfig{Servers: []StreamServer{
			{Name: "s1", ListenPort: 9000, Enabled: true, Upstreams: []StreamUpstream{{Addr: "10.0.0.1:9000"}}},
		}},
	}

	if err := Validate(cfg); err != nil {
		t.Fatalf("expected well-formed config to validate, got %v", err)
	}
}
