package config

import "time"

// Config is the full, read-only configuration snapshot handed to the core at
// listener start. This package owns its shape, the documented defaults and
// validation; Load (config.go) builds one from a YAML file and SPM_-prefixed
// environment variables.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Global   GlobalConfig   `yaml:"global"`
	Admin    AdminConfig    `yaml:"admin"`
	HTTP     []ListenRule   `yaml:"http"`
	WS       []WSRule       `yaml:"ws"`
	Stream   StreamConfig   `yaml:"stream"`
}

// AdminConfig controls the ops-facing HTTP surface (health, status, metrics
// queries, lifecycle event stream) separate from any proxied listener.
type AdminConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// GlobalConfig holds the process-wide flags shared by every listener.
type GlobalConfig struct {
	Whitelist                  []string           `yaml:"whitelist"`
	Compression                CompressionConfig  `yaml:"compression"`
	AllowAllLan                bool               `yaml:"allow_all_lan"`
	AllowAllIP                 bool               `yaml:"allow_all_ip"`
	HTTPAccessControlEnabled   bool               `yaml:"http_access_control_enabled"`
	WSAccessControlEnabled     bool               `yaml:"ws_access_control_enabled"`
	StreamAccessControlEnabled bool               `yaml:"stream_access_control_enabled"`
	StreamProxyStreaming       bool               `yaml:"stream_proxy_streaming"`
	MaxBodySize                int64              `yaml:"max_body_size"`
	MaxResponseBodySize        int64              `yaml:"max_response_body_size"`
	UpstreamConnectTimeoutMs   int                `yaml:"upstream_connect_timeout_ms"`
	UpstreamReadTimeoutMs      int                `yaml:"upstream_read_timeout_ms"`
	UpstreamPoolMaxIdle        int                `yaml:"upstream_pool_max_idle"`
	UpstreamPoolIdleTimeoutSec int                `yaml:"upstream_pool_idle_timeout_sec"`
	EnableHTTP2                bool               `yaml:"enable_http2"`
}

// CompressionConfig controls the optional outbound compression layer.
type CompressionConfig struct {
	Gzip    GzipConfig   `yaml:"gzip"`
	Brotli  BrotliConfig `yaml:"brotli"`
	Enabled bool         `yaml:"enabled"`
}

type GzipConfig struct {
	On    bool `yaml:"on"`
	Level int  `yaml:"level"` // 1..9
}

type BrotliConfig struct {
	On    bool `yaml:"on"`
	Level int  `yaml:"level"` // 0..11
}

// ListenRule is one HTTP/HTTPS listener: a set of bind addresses, optional
// TLS material, listener-level Basic auth and rate limiting, and an ordered
// list of routes.
type ListenRule struct {
	ID          string       `yaml:"id"`
	ListenAddrs []string     `yaml:"listen_addrs"`
	TLS         TLSConfig    `yaml:"tls"`
	BasicAuth   BasicAuth    `yaml:"basic_auth"`
	RateLimit   *RateLimit   `yaml:"rate_limit"`
	Routes      []Route      `yaml:"routes"`
	Enabled     bool         `yaml:"enabled"`
}

type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	Enabled  bool   `yaml:"ssl_enable"`
}

type BasicAuth struct {
	User          string `yaml:"user"`
	Pass          string `yaml:"pass"`
	Enabled       bool   `yaml:"enable"`
	ForwardHeader bool   `yaml:"forward_header"`
}

type RateLimit struct {
	RPS        float64 `yaml:"rps"`
	Burst      int     `yaml:"burst"`
	BanSeconds int64   `yaml:"ban_seconds"`
}

// Route is matched by host + longest path prefix within its owning rule.
type Route struct {
	ID                 string            `yaml:"id"`
	Host               string            `yaml:"host"`
	Path               string            `yaml:"path"`
	ProxyPassPath      string            `yaml:"proxy_pass_path"`
	StaticDir          string            `yaml:"static_dir"`
	SetHeaders         []HeaderKV        `yaml:"set_headers"`
	RemoveHeaders      []string          `yaml:"remove_headers"`
	URLRewriteRules    []RewriteRule     `yaml:"url_rewrite_rules"`
	RequestBodyReplace []BodyReplaceRule `yaml:"request_body_replace"`
	ResponseBodyReplace []BodyReplaceRule `yaml:"response_body_replace"`
	Upstreams          []Upstream        `yaml:"upstreams"`
	Enabled            bool              `yaml:"enabled"`
	FollowRedirects    bool              `yaml:"follow_redirects"`
	ExcludeBasicAuth   bool              `yaml:"exclude_basic_auth"`
}

// HeaderKV preserves insertion order, unlike a plain map.
type HeaderKV struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type RewriteRule struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	Enabled     bool   `yaml:"enabled"`
}

type BodyReplaceRule struct {
	Find     string `yaml:"find"`
	Replace  string `yaml:"replace"`
	UseRegex bool   `yaml:"use_regex"`
	Enabled  bool   `yaml:"enabled"`
}

type Upstream struct {
	URL    string `yaml:"url"`
	Weight int    `yaml:"weight"`
}

// WSRule configures one WebSocket upgrade listener, which may front several
// upstreams selected by host + longest-path-prefix matching.
type WSRule struct {
	ID          string    `yaml:"id"`
	ListenAddrs []string  `yaml:"listen_addrs"`
	Routes      []WSRoute `yaml:"routes"`
	Enabled     bool      `yaml:"enabled"`
}

// WSRoute binds one path (optionally host-scoped) to a single upstream.
type WSRoute struct {
	ID          string `yaml:"id"`
	Host        string `yaml:"host"`
	Path        string `yaml:"path"`
	UpstreamURL string `yaml:"upstream_url"`
	Enabled     bool   `yaml:"enabled"`
}

// StreamConfig holds every TCP/UDP stream server.
type StreamConfig struct {
	Servers []StreamServer `yaml:"servers"`
}

type StreamServer struct {
	Name               string           `yaml:"name"`
	ListenPort         int              `yaml:"listen_port"`
	UDP                bool             `yaml:"udp"`
	Upstreams          []StreamUpstream `yaml:"upstreams"`
	HashKey            string           `yaml:"hash_key"` // "" or "$remote_addr"
	Consistent         bool             `yaml:"consistent"`
	ProxyConnectTimeout time.Duration   `yaml:"proxy_connect_timeout"`
	ProxyTimeout       time.Duration    `yaml:"proxy_timeout"`
	MaxFails           int              `yaml:"max_fails"`
	FailTimeout        time.Duration    `yaml:"fail_timeout"`
	Enabled            bool             `yaml:"enabled"`
}

type StreamUpstream struct {
	Addr   string `yaml:"addr"` // host:port
	Weight int    `yaml:"weight"`
}

// MetricsConfig points at the embedded SQL store and tunes the persistence
// worker's batching and cache behaviour.
type MetricsConfig struct {
	StorePath          string        `yaml:"store_path"`
	FlushBatchSize     int           `yaml:"flush_batch_size"`
	FlushInterval      time.Duration `yaml:"flush_interval"`
	BlacklistRefresh   time.Duration `yaml:"blacklist_refresh"`
	CacheTTL           time.Duration `yaml:"cache_ttl"`
	QueueCapacity      int           `yaml:"queue_capacity"`
	PrometheusEnabled  bool          `yaml:"prometheus_enabled"`
}

// LoggingConfig mirrors the teacher's internal/logger.Config shape.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Theme      string `yaml:"theme"`
	LogDir     string `yaml:"log_dir"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	FileOutput bool   `yaml:"file_output"`
	PrettyLogs bool   `yaml:"pretty_logs"`
}
