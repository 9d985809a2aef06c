// Package accessgate implements the combined blacklist/whitelist/LAN/
// rate-limit decision point shared by the HTTP, WS and stream engines.
package accessgate

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/sslproxymanager/core/internal/core/domain"
	"github.com/sslproxymanager/core/internal/logger"
	"github.com/sslproxymanager/core/internal/util"
)

// Store is the durable side of the blacklist: add/remove/load entries. Its
// shape matches ports.MetricsStore's blacklist methods exactly, so the same
// SQLite-backed store satisfies both without an adapter.
type Store interface {
	UpsertBlacklist(ctx context.Context, entry domain.BlacklistEntry) error
	RemoveBlacklist(ctx context.Context, ip string) error
	LoadBlacklist(ctx context.Context) ([]domain.BlacklistEntry, error)
}

type limiterKey struct {
	listener string
	ip       string
}

type limiterEntry struct {
	mu     sync.Mutex
	bucket domain.TokenBucket
	last   time.Time
}

// Gate is the process-wide access-control singleton: one blacklist cache and
// one rate-limit bucket map shared by every listener.
type Gate struct {
	whitelist []net.IP
	store     Store
	log       *logger.StyledLogger

	blacklistMu sync.RWMutex
	blacklist   map[string]domain.BlacklistEntry

	limiters *xsync.Map[limiterKey, *limiterEntry]

	stopGC chan struct{}
}

// New builds a Gate with the given static whitelist (already parsed) and an
// optional durable Store for blacklist persistence (nil disables persistence;
// entries then live only in memory for the process lifetime).
func New(whitelist []net.IP, store Store, log *logger.StyledLogger) *Gate {
	g := &Gate{
		whitelist: whitelist,
		store:     store,
		log:       log,
		blacklist: make(map[string]domain.BlacklistEntry),
		limiters:  xsync.NewMap[limiterKey, *limiterEntry](),
		stopGC:    make(chan struct{}),
	}
	if store != nil {
		g.RefreshBlacklistCache()
	}
	go g.gcLoop()
	return g
}

// Close stops the background bucket-GC loop.
func (g *Gate) Close() {
	close(g.stopGC)
}

// DeriveClientIP applies the XFF/X-Real-IP/remote-addr precedence and
// IPv4-mapped folding.
func (g *Gate) DeriveClientIP(remoteAddr string, header http.Header) net.IP {
	return util.DeriveClientIP(remoteAddr, header)
}

// IsAllowedFast runs the blacklist/loopback/whitelist/LAN decision chain.
func (g *Gate) IsAllowedFast(ip net.IP, allowAllLan, allowAllIP bool) bool {
	if ip == nil {
		return false
	}
	if g.isBlacklisted(ip) {
		return false
	}
	if util.IsLoopback(ip) {
		return true
	}
	for _, w := range g.whitelist {
		if util.IPEqual(ip, w) {
			return true
		}
	}
	if allowAllIP {
		return true
	}
	if allowAllLan && util.IsLAN(ip) {
		return true
	}
	return false
}

func (g *Gate) isBlacklisted(ip net.IP) bool {
	folded := util.FoldIPv4Mapped(ip).String()
	g.blacklistMu.RLock()
	entry, ok := g.blacklist[folded]
	g.blacklistMu.RUnlock()
	if !ok {
		return false
	}
	return !entry.Expired(time.Now())
}

// Blacklist adds ip to the blacklist, fire-and-forget; ttlSeconds == 0 is permanent.
func (g *Gate) Blacklist(ip net.IP, reason string, ttlSeconds int64) {
	folded := util.FoldIPv4Mapped(ip).String()
	now := time.Now()
	var expiresAt int64
	if ttlSeconds > 0 {
		expiresAt = now.Add(time.Duration(ttlSeconds) * time.Second).Unix()
	}

	entry := domain.BlacklistEntry{IP: folded, Reason: reason, ExpiresAt: expiresAt, CreatedAt: now.Unix()}
	g.blacklistMu.Lock()
	g.blacklist[folded] = entry
	g.blacklistMu.Unlock()

	if g.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.store.UpsertBlacklist(ctx, entry); err != nil && g.log != nil {
			g.log.Warn("failed to persist blacklist entry", "ip", folded, "error", err)
		}
	}()
}

// RemoveFromBlacklist deletes ip from the cache and, if persistence is
// configured, the durable store (fire-and-forget, matching Blacklist).
func (g *Gate) RemoveFromBlacklist(ip net.IP) {
	folded := util.FoldIPv4Mapped(ip).String()
	g.blacklistMu.Lock()
	delete(g.blacklist, folded)
	g.blacklistMu.Unlock()

	if g.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.store.RemoveBlacklist(ctx, folded); err != nil && g.log != nil {
			g.log.Warn("failed to remove blacklist entry", "ip", folded, "error", err)
		}
	}()
}

// BlacklistEntries returns a snapshot of every cached blacklist entry.
func (g *Gate) BlacklistEntries() []domain.BlacklistEntry {
	g.blacklistMu.RLock()
	defer g.blacklistMu.RUnlock()
	out := make([]domain.BlacklistEntry, 0, len(g.blacklist))
	for _, e := range g.blacklist {
		out = append(out, e)
	}
	return out
}

// RefreshBlacklistCache reloads the in-memory blacklist from the durable
// store; called on Gate construction and periodically by the metrics
// persistence worker.
func (g *Gate) RefreshBlacklistCache() {
	if g.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entries, err := g.store.LoadBlacklist(ctx)
	if err != nil {
		if g.log != nil {
			g.log.Warn("failed to refresh blacklist cache", "error", err)
		}
		return
	}
	fresh := make(map[string]domain.BlacklistEntry, len(entries))
	for _, e := range entries {
		fresh[e.IP] = e
	}
	g.blacklistMu.Lock()
	g.blacklist = fresh
	g.blacklistMu.Unlock()
}

// AllowRate consults (creating if absent) the per-(listener,ip) token bucket.
// ok is false when the request must be rejected; banTriggered tells the
// caller to schedule an async Blacklist call with banSeconds.
func (g *Gate) AllowRate(listenerKey string, ip net.IP, rps float64, burst int, banSeconds int64) (ok bool, banTriggered bool) {
	key := limiterKey{listener: listenerKey, ip: util.FoldIPv4Mapped(ip).String()}
	now := time.Now()

	entry, _ := g.limiters.LoadOrCompute(key, func() (*limiterEntry, bool) {
		return &limiterEntry{
			bucket: domain.TokenBucket{
				Tokens:       float64(burst),
				Capacity:     float64(burst),
				RefillPerSec: rps,
				LastUpdate:   now,
			},
			last: now,
		}, false
	})

	entry.mu.Lock()
	allowed := entry.bucket.Refill(now)
	entry.last = now
	entry.mu.Unlock()

	if allowed {
		return true, false
	}
	return false, banSeconds > 0
}

// gcLoop evicts rate-limit buckets idle for longer than the GC TTL, every
// GC interval: limiters unused for >=10 min are garbage-collected every 5 min.
func (g *Gate) gcLoop() {
	const (
		idleTTL  = 10 * time.Minute
		interval = 5 * time.Minute
	)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stopGC:
			return
		case now := <-ticker.C:
			g.limiters.Range(func(k limiterKey, v *limiterEntry) bool {
				v.mu.Lock()
				idle := now.Sub(v.last)
				v.mu.Unlock()
				if idle >= idleTTL {
					g.limiters.Delete(k)
				}
				return true
			})
		}
	}
}
