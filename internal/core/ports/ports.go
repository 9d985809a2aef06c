// Package ports defines the interfaces the proxy engines depend on so that
// the access gate, balancer, and metrics core can be built, tested, and
// swapped independently of any one engine.
package ports

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sslproxymanager/core/internal/core/domain"
)

// AccessGate is the combined blacklist/whitelist/LAN/rate-limit decision
// point shared by the HTTP, WS and stream engines.
type AccessGate interface {
	// DeriveClientIP applies the XFF/X-Real-IP/remote-addr precedence and
	// IPv4-mapped folding.
	DeriveClientIP(remoteAddr string, header http.Header) net.IP

	// IsAllowedFast runs the blacklist/loopback/whitelist/LAN decision chain.
	// allowAllLan/allowAllIP are the listener's own config flags, since the
	// same gate instance is shared across listeners with different policies.
	IsAllowedFast(ip net.IP, allowAllLan, allowAllIP bool) bool

	// AllowRate consults (creating if absent) the per-IP token bucket for the
	// given listener key. ok is false when the request must be rejected;
	// banSeconds > 0 means the caller should schedule an async blacklist add.
	AllowRate(listenerKey string, ip net.IP, rps float64, burst int, banSeconds int64) (ok bool, banTriggered bool)

	// Blacklist adds ip to the blacklist, fire-and-forget; ttlSeconds == 0 is permanent.
	Blacklist(ip net.IP, reason string, ttlSeconds int64)
}

// Balancer picks an upstream for a route using smooth weighted round-robin.
type Balancer interface {
	// Select returns the chosen upstream URL, or ok=false if upstreams is empty.
	Select(routeID string, upstreams []domain.UpstreamState) (url string, ok bool)
	// Reset discards all per-route state (used by tests).
	Reset()
}

// MetricsCollector is the ingest side of the metrics core: one call per
// completed request, a shard update, and a best-effort enqueue to the
// persistence worker.
type MetricsCollector interface {
	Enqueue(rec domain.RequestLog)
	Snapshot() MetricsPayload
	Close()
}

// MetricsPayload is the cached merge of all shards returned by Snapshot/get_metrics.
type MetricsPayload struct {
	GeneratedAt time.Time
	Series      map[string]LabelSeries
	Dropped     int64
}

// LabelSeries is one label's (global or a listen address) time series, both
// granularities, as returned to API consumers.
type LabelSeries struct {
	PerSecond []SeriesPoint
	PerMinute []SeriesPoint
}

// SeriesPoint is one bucket rendered for external consumption.
type SeriesPoint struct {
	Timestamp    int64
	Count        int64
	S2xx, S3xx, S4xx, S5xx, S0 int64
	AvgLatencyMs float64
	MaxLatencyMs float64
}

// MetricsStore is the durable side: schema migration, batch insert, blacklist
// persistence and historical queries, backed by an embedded SQL database.
type MetricsStore interface {
	Migrate(ctx context.Context) error
	InsertBatch(ctx context.Context, recs []domain.RequestLog) error

	UpsertBlacklist(ctx context.Context, entry domain.BlacklistEntry) error
	RemoveBlacklist(ctx context.Context, ip string) error
	LoadBlacklist(ctx context.Context) ([]domain.BlacklistEntry, error)

	QueryHistorical(ctx context.Context, start, end int64, listenAddr string) (HistoricalResult, error)
	QueryDashboard(ctx context.Context, start, end int64, granularitySec int64) (DashboardResult, error)
	QueryRequestLogs(ctx context.Context, start, end int64, listenAddr string, limit int) ([]domain.RequestLog, error)

	Close() error
}

// HistoricalResult is the time-bucketed response shape for a historical
// metrics query over one listener or the whole fleet.
type HistoricalResult struct {
	Buckets            []SeriesPoint
	TopUpstreams       []NamedCount
	TopErrorPaths      []NamedCount
	TopErrorUpstreams  []NamedCount
	LatencyHistogram   [12]int64
	P50, P95, P99       float64
}

// DashboardResult is the response shape for the top-N dashboard summary.
type DashboardResult struct {
	Buckets        []SeriesPoint
	TopPaths       []NamedCount
	TopClientIPs   []NamedCount
	TopRoutes      []NamedCount
	TopErrorRoutes []NamedCount
	SuccessRate    float64
}

// NamedCount is a generic (name, count) pair for top-list results.
type NamedCount struct {
	Name  string
	Count int64
}

// LifecycleController owns the start/stop ordering of every managed
// service (access gate, metrics core, load balancer registry, and every
// HTTP/WS/Stream listener), gating "running" on all of them succeeding.
type LifecycleController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
	IsStarting() bool

	// GetLogs returns the buffered tail of recent log lines; ClearLogs
	// discards it.
	GetLogs() []string
	ClearLogs()

	// QueryRequestLogs answers a raw (non-bucketed) request-log query;
	// enabled is false when metrics persistence is disabled.
	QueryRequestLogs(ctx context.Context, start, end int64, listenAddr string, limit int) (recs []domain.RequestLog, enabled bool, err error)

	// AddBlacklistEntry/RemoveBlacklistEntry/GetBlacklistEntries expose the
	// access gate's blacklist for ops management.
	AddBlacklistEntry(ip net.IP, reason string, ttlSeconds int64)
	RemoveBlacklistEntry(ip net.IP)
	GetBlacklistEntries() []domain.BlacklistEntry
}
