// Package lifecycle wires the access gate, metrics core, load balancer
// registry and every HTTP/WS/Stream listener into one dependency-ordered
// Manager, built on the teacher's ServiceManager/Kahn's-algorithm idiom.
package lifecycle

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sslproxymanager/core/internal/accessgate"
	"github.com/sslproxymanager/core/internal/balancer"
	"github.com/sslproxymanager/core/internal/config"
	"github.com/sslproxymanager/core/internal/core/domain"
	"github.com/sslproxymanager/core/internal/core/ports"
	"github.com/sslproxymanager/core/internal/logger"
	"github.com/sslproxymanager/core/internal/metrics"
	proxyhttp "github.com/sslproxymanager/core/internal/proxy/http"
	"github.com/sslproxymanager/core/internal/proxy/stream"
	"github.com/sslproxymanager/core/internal/proxy/ws"
	"github.com/sslproxymanager/core/pkg/eventbus"
)

const promExportInterval = 10 * time.Second

// Controller is the top-level ports.LifecycleController: it owns the
// Manager's dependency graph and the concrete gate/aggregator/store it
// hands to every listener it registers.
type Controller struct {
	manager *Manager
	log     *logger.StyledLogger

	store *metrics.SQLiteStore
	gate  *accessgate.Gate
	agg   *metrics.Aggregator
	bf    *balancer.Factory
	bus   *eventbus.EventBus[LifecycleEvent]

	promReg *prometheus.Registry
	promExp *metrics.PromExporter

	running  atomic.Bool
	starting atomic.Bool
	mu       sync.Mutex
}

// PrometheusGatherer exposes the Prometheus registry for the admin surface's
// /metrics endpoint; it is nil when prometheus_enabled is false.
func (c *Controller) PrometheusGatherer() prometheus.Gatherer {
	if c.promReg == nil {
		return nil
	}
	return c.promReg
}

// Subscribe hands back a channel of lifecycle events (status changes,
// listener start failures, log passthrough) for the admin surface to
// stream to a connected console.
func (c *Controller) Subscribe(ctx context.Context) (<-chan LifecycleEvent, func()) {
	return c.bus.Subscribe(ctx)
}

// New builds a Controller from a full configuration snapshot. It does not
// start anything; call Start to bring the process up.
func New(cfg config.Config, log *logger.StyledLogger) (*Controller, error) {
	if err := config.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var store *metrics.SQLiteStore
	if cfg.Metrics.StorePath != "" {
		var err error
		store, err = metrics.OpenSQLiteStore(cfg.Metrics.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open metrics store: %w", err)
		}
	}

	// A *metrics.SQLiteStore nil pointer boxed into an interface is a non-nil
	// interface, so both Store params must stay nil interfaces when unset.
	var gateStore accessgate.Store
	var metricsStore ports.MetricsStore
	if store != nil {
		gateStore = store
		metricsStore = store
	}

	gate := accessgate.New(parseWhitelist(cfg.Global.Whitelist), gateStore, log)
	agg := metrics.New(metricsStore, gate, log)
	bf := balancer.NewFactory()

	c := &Controller{log: log, store: store, gate: gate, agg: agg, bf: bf, bus: eventbus.New[LifecycleEvent]()}
	c.manager = NewManager(log)

	if cfg.Metrics.PrometheusEnabled {
		c.promReg = prometheus.NewRegistry()
	}

	if err := c.registerCore(); err != nil {
		return nil, err
	}
	if err := c.registerListeners(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

func parseWhitelist(entries []string) []net.IP {
	ips := make([]net.IP, 0, len(entries))
	for _, e := range entries {
		if ip := net.ParseIP(e); ip != nil {
			ips = append(ips, ip)
		}
	}
	return ips
}

func (c *Controller) registerCore() error {
	if err := c.manager.Register(&namedService{
		name: metricsCoreName,
		start: func(ctx context.Context) error {
			if c.promReg != nil {
				c.promExp = metrics.NewPromExporter(c.agg, c.promReg, c.log, promExportInterval)
			}
			if c.store == nil {
				return nil
			}
			return c.store.Migrate(ctx)
		},
		stop: func(ctx context.Context) error {
			if c.promExp != nil {
				c.promExp.Stop()
			}
			c.agg.Close()
			if c.store == nil {
				return nil
			}
			return c.store.Close()
		},
	}); err != nil {
		return err
	}

	if err := c.manager.Register(&namedService{
		name: accessGateName,
		stop: func(ctx context.Context) error {
			c.gate.Close()
			return nil
		},
	}); err != nil {
		return err
	}

	return c.manager.Register(&namedService{name: balancerName})
}

// registerListeners builds one balancer, one routing registry and one
// Listener/Server per configured HTTP/WS/Stream rule, then registers each as
// a ManagedService depending on the access gate and metrics core.
func (c *Controller) registerListeners(cfg config.Config) error {
	for _, rule := range cfg.HTTP {
		if !rule.Enabled {
			continue
		}
		bal, err := c.bf.Create("swrr")
		if err != nil {
			return fmt.Errorf("http listener %s: %w", rule.ID, err)
		}
		node := proxyhttp.New(rule, cfg.Global, c.gate, bal, c.agg, c.log)
		if err := c.manager.Register(&listenerService{name: "http:" + rule.ID, node: node}); err != nil {
			return err
		}
	}

	for _, rule := range cfg.WS {
		if !rule.Enabled {
			continue
		}
		node := ws.New(rule, cfg.Global, c.gate, c.log)
		if err := c.manager.Register(&listenerService{name: "ws:" + rule.ID, node: node}); err != nil {
			return err
		}
	}

	for _, srv := range cfg.Stream.Servers {
		if !srv.Enabled {
			continue
		}
		node := stream.New(srv, cfg.Global, c.gate, c.log)
		if err := c.manager.Register(&listenerService{name: "stream:" + srv.Name, node: node}); err != nil {
			return err
		}
	}

	return nil
}

func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.starting.Store(true)
	c.bus.Publish(LifecycleEvent{Type: EventStatus, Timestamp: time.Now(), Starting: true})
	defer c.starting.Store(false)

	if err := c.manager.Start(ctx); err != nil {
		c.bus.Publish(LifecycleEvent{Type: EventServerStartError, Timestamp: time.Now(), Err: err.Error()})
		return err
	}
	c.running.Store(true)
	c.bus.Publish(LifecycleEvent{Type: EventStatus, Timestamp: time.Now(), Running: true})
	return nil
}

func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.manager.Stop(ctx)
	c.running.Store(false)
	c.bus.Publish(LifecycleEvent{Type: EventStatus, Timestamp: time.Now(), Running: false})
	return err
}

func (c *Controller) IsRunning() bool  { return c.running.Load() }
func (c *Controller) IsStarting() bool { return c.starting.Load() }

// Metrics returns the sharded real-time snapshot merged across every listener.
func (c *Controller) Metrics() ports.MetricsPayload {
	return c.agg.Snapshot()
}

// QueryHistorical answers a time-bucketed historical query if a durable
// store is configured; ok is false when metrics persistence is disabled.
func (c *Controller) QueryHistorical(ctx context.Context, start, end int64, listenAddr string) (result ports.HistoricalResult, ok bool, err error) {
	if c.store == nil {
		return ports.HistoricalResult{}, false, nil
	}
	result, err = c.store.QueryHistorical(ctx, start, end, listenAddr)
	return result, true, err
}

// QueryDashboard answers a top-N dashboard summary query if a durable store
// is configured; ok is false when metrics persistence is disabled.
func (c *Controller) QueryDashboard(ctx context.Context, start, end, granularitySec int64) (result ports.DashboardResult, ok bool, err error) {
	if c.store == nil {
		return ports.DashboardResult{}, false, nil
	}
	result, err = c.store.QueryDashboard(ctx, start, end, granularitySec)
	return result, true, err
}

// GetLogs returns the buffered tail of recent log lines.
func (c *Controller) GetLogs() []string {
	return c.log.GetLogs()
}

// ClearLogs discards the buffered log tail.
func (c *Controller) ClearLogs() {
	c.log.ClearLogs()
}

// QueryRequestLogs answers a raw request-log query if a durable store is
// configured; ok is false when metrics persistence is disabled.
func (c *Controller) QueryRequestLogs(ctx context.Context, start, end int64, listenAddr string, limit int) (recs []domain.RequestLog, ok bool, err error) {
	if c.store == nil {
		return nil, false, nil
	}
	recs, err = c.store.QueryRequestLogs(ctx, start, end, listenAddr, limit)
	return recs, true, err
}

// AddBlacklistEntry adds ip to the access gate's blacklist.
func (c *Controller) AddBlacklistEntry(ip net.IP, reason string, ttlSeconds int64) {
	c.gate.Blacklist(ip, reason, ttlSeconds)
}

// RemoveBlacklistEntry removes ip from the access gate's blacklist.
func (c *Controller) RemoveBlacklistEntry(ip net.IP) {
	c.gate.RemoveFromBlacklist(ip)
}

// GetBlacklistEntries returns every currently cached blacklist entry.
func (c *Controller) GetBlacklistEntries() []domain.BlacklistEntry {
	return c.gate.BlacklistEntries()
}

var _ ports.LifecycleController = (*Controller)(nil)
