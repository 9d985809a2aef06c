package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sslproxymanager/core/internal/logger"
)

// PromExporter periodically copies the aggregator's cached shard totals into
// a Prometheus registry, independent of the historical-query RPCs. It never
// touches the hot request path: Enqueue never blocks on it.
type PromExporter struct {
	agg *Aggregator
	log *logger.StyledLogger

	requests *prometheus.CounterVec
	latency  *prometheus.GaugeVec
	dropped  prometheus.Gauge

	stopCh chan struct{}
	doneCh chan struct{}

	mu   sync.Mutex
	seen map[string]float64 // last-seen cumulative count per label, for counter deltas
}

// NewPromExporter registers its series on reg and starts the copy loop at
// the given interval (10s in production use).
func NewPromExporter(agg *Aggregator, reg prometheus.Registerer, log *logger.StyledLogger, interval time.Duration) *PromExporter {
	e := &PromExporter{
		agg: agg,
		log: log,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sslproxymanager_requests_total",
			Help: "Total proxied requests observed by the metrics core, by listen address.",
		}, []string{"listen_addr"}),
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sslproxymanager_avg_latency_ms",
			Help: "Average request latency in milliseconds over the most recent per-second bucket, by listen address.",
		}, []string{"listen_addr"}),
		dropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sslproxymanager_dropped_records_total",
			Help: "Request log records dropped because the persistence queue was full.",
		}),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		seen:   make(map[string]float64),
	}
	reg.MustRegister(e.requests, e.latency, e.dropped)

	go e.loop(interval)
	return e
}

func (e *PromExporter) loop(interval time.Duration) {
	defer close(e.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.copyOnce()
		}
	}
}

func (e *PromExporter) copyOnce() {
	snap := e.agg.Snapshot()
	e.dropped.Set(float64(snap.Dropped))

	e.mu.Lock()
	defer e.mu.Unlock()

	for label, series := range snap.Series {
		var total float64
		var lastAvg float64
		var lastTs int64
		for _, p := range series.PerSecond {
			total += float64(p.Count)
			if p.Timestamp >= lastTs {
				lastTs = p.Timestamp
				lastAvg = p.AvgLatencyMs
			}
		}
		prior := e.seen[label]
		if delta := total - prior; delta > 0 {
			e.requests.WithLabelValues(label).Add(delta)
		}
		e.seen[label] = total
		e.latency.WithLabelValues(label).Set(lastAvg)
	}
}

// Stop halts the copy loop and waits for it to return.
func (e *PromExporter) Stop() {
	close(e.stopCh)
	<-e.doneCh
}
