// Package domain holds runtime types shared across the proxy engines: load
// balancer state, metric buckets, and the records that flow into the store.
// Configuration types live in internal/config; these are the shapes built
// from that configuration once a listener is running.
package domain

import "time"

// UpstreamState is one weighted upstream inside a route's SWRR state.
type UpstreamState struct {
	URL     string
	Weight  int64
	Current int64
}

// RouteBalancerState is the smooth weighted round-robin state for one route,
// rebuilt whenever the route's upstream list or weights change underneath it.
type RouteBalancerState struct {
	Signature   string
	TotalWeight int64
	Upstreams   []*UpstreamState
}

// StatusClass buckets an HTTP status code the way metric buckets count them.
type StatusClass int

const (
	Status2xx StatusClass = iota
	Status3xx
	Status4xx
	Status5xx
	Status0 // no status: request never reached an upstream, or a transport-level failure
)

// ClassifyStatus maps a status code (0 = none) to its StatusClass.
func ClassifyStatus(status int) StatusClass {
	switch {
	case status == 0:
		return Status0
	case status >= 200 && status < 300:
		return Status2xx
	case status >= 300 && status < 400:
		return Status3xx
	case status >= 400 && status < 500:
		return Status4xx
	default:
		return Status5xx
	}
}

// Bucket is one time-bucketed aggregate within a shard's per-second or
// per-minute series.
type Bucket struct {
	Count        int64
	S2xx         int64
	S3xx         int64
	S4xx         int64
	S5xx         int64
	S0           int64
	LatencySumMs float64
	LatencyMaxMs float64
}

// Add folds one request's outcome into the bucket.
func (b *Bucket) Add(status int, latencyMs float64) {
	b.Count++
	switch ClassifyStatus(status) {
	case Status2xx:
		b.S2xx++
	case Status3xx:
		b.S3xx++
	case Status4xx:
		b.S4xx++
	case Status5xx:
		b.S5xx++
	case Status0:
		b.S0++
	}
	b.LatencySumMs += latencyMs
	if latencyMs > b.LatencyMaxMs {
		b.LatencyMaxMs = latencyMs
	}
}

// RequestLog is one completed request's record, the richer union named by
// the data model: matched_route_id, remote_ip, host, user agent and referer
// all included regardless of which engine produced the request.
type RequestLog struct {
	Timestamp     int64
	ListenAddr    string
	ClientIP      string
	RemoteIP      string
	Method        string
	Path          string
	Host          string
	Status        int
	Upstream      string
	LatencyMs     float64
	UserAgent     string
	Referer       string
	MatchedRoute  string
}

// BlacklistEntry is one blocked IP; ExpiresAt of zero means permanent.
type BlacklistEntry struct {
	IP        string
	Reason    string
	ExpiresAt int64
	CreatedAt int64
}

// Expired reports whether the entry's ban has lapsed as of now.
func (b BlacklistEntry) Expired(now time.Time) bool {
	return b.ExpiresAt != 0 && b.ExpiresAt <= now.Unix()
}

// TokenBucket is a per-IP rate limit bucket; Tokens/LastUpdate are the
// mutable fields refilled on each check.
type TokenBucket struct {
	Tokens       float64
	Capacity     float64
	RefillPerSec float64
	LastUpdate   time.Time
}

// Refill tops the bucket up to Capacity based on elapsed time and attempts to
// consume one token, returning whether the request is allowed.
func (t *TokenBucket) Refill(now time.Time) bool {
	elapsed := now.Sub(t.LastUpdate).Seconds()
	if elapsed > 0 {
		t.Tokens += elapsed * t.RefillPerSec
		if t.Tokens > t.Capacity {
			t.Tokens = t.Capacity
		}
		t.LastUpdate = now
	}
	if t.Tokens >= 1 {
		t.Tokens--
		return true
	}
	return false
}

// StreamFailState tracks consecutive connect failures for one TCP/UDP
// upstream address, gating it out of selection while DownUntil is in effect.
type StreamFailState struct {
	Fails     int
	DownUntil time.Time
}

// Down reports whether the upstream is currently excluded from selection.
func (s *StreamFailState) Down(now time.Time) bool {
	return now.Before(s.DownUntil)
}

// UDPSession pins a client address to the upstream it was last routed to.
type UDPSession struct {
	Upstream string
	LastSeen int64 // unix millis
}
