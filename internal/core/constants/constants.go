// Package constants holds header names, context keys and retention/size
// constants shared across the access gate, proxy engines and metrics core.
package constants

import "time"

// Header names the proxy engine reads or writes explicitly.
const (
	HeaderHost              = "Host"
	HeaderConnection        = "Connection"
	HeaderAcceptEncoding    = "Accept-Encoding"
	HeaderXRealIP           = "X-Real-IP"
	HeaderXForwardedFor     = "X-Forwarded-For"
	HeaderXForwardedProto   = "X-Forwarded-Proto"
	HeaderContentType       = "Content-Type"
	HeaderAuthorization     = "Authorization"
	HeaderWWWAuthenticate   = "WWW-Authenticate"
)

// BasicAuthRealm is the realm advertised in a 401 WWW-Authenticate challenge.
const BasicAuthRealm = `Basic realm="SSLProxyManager"`

// HopByHopHeaders are stripped on every hop per RFC 7230 §6.1, matched
// case-insensitively.
var HopByHopHeaders = []string{
	"connection",
	"keep-alive",
	"proxy-authenticate",
	"proxy-authorization",
	"te",
	"trailer",
	"transfer-encoding",
	"upgrade",
}

// contextKey is an unexported type so context values can't collide with
// keys set by other packages.
type contextKey string

const (
	CtxRequestID    contextKey = "request_id"
	CtxClientIP     contextKey = "client_ip"
	CtxMatchedRoute contextKey = "matched_route_id"
)

// Metrics core constants.
const (
	ShardCount = 64

	PerSecondRetention = 12 * time.Hour
	PerMinuteRetention  = 24 * time.Hour

	RequestLogQueueCapacity = 50000
	FlushBatchSize          = 2000
	FlushChunkSize          = 500
	FlushInterval           = 5 * time.Second
	BlacklistRefreshPeriod  = 10 * time.Second
	MetricsCacheTTL         = 500 * time.Millisecond
)

// Rate-limit bucket GC constants.
const (
	TokenBucketIdleTTL     = 10 * time.Minute
	TokenBucketGCInterval  = 5 * time.Minute
)

// Stream proxy constants.
const (
	ConsistentHashVNodes = 160
	UDPSessionSweep      = 10 * time.Second
	UDPSessionMinTTL     = 10 * time.Second
)

// HTTP client pool defaults; overridden by config when set.
const (
	DefaultTCPKeepAlive        = 60 * time.Second
	DefaultMaxRedirects        = 10
	DefaultStreamBufferSize    = 8 * 1024
	DefaultTLSHandshakeTimeout = 10 * time.Second
)

// Top-list limits used by historical aggregation.
const (
	TopUpstreamsLimit = 20
	TopErrorPathsLimit = 10
	TopErrorUpstreamsLimit = 10
	TopPathsLimit = 10
	TopClientIPsLimit = 10
	TopRoutesLimit = 10
)
