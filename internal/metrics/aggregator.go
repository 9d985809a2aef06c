package metrics

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/sslproxymanager/core/internal/core/constants"
	"github.com/sslproxymanager/core/internal/core/domain"
	"github.com/sslproxymanager/core/internal/core/ports"
	"github.com/sslproxymanager/core/internal/logger"
)

// BlacklistRefresher is the subset of accessgate.Gate the persistence loop
// needs, kept as a local interface so the metrics core doesn't import the
// access gate package just for this one call.
type BlacklistRefresher interface {
	RefreshBlacklistCache()
}

// Aggregator is the process-wide metrics-core singleton: 64 independently
// locked shards feeding a bounded MPSC queue drained by one persistence
// worker, plus a 500ms-TTL cache for the merged read path.
type Aggregator struct {
	shards [constants.ShardCount]*shard

	queue   chan domain.RequestLog
	dropped atomic.Int64

	store ports.MetricsStore
	gate  BlacklistRefresher
	log   *logger.StyledLogger

	cacheMu   sync.Mutex
	cached    ports.MetricsPayload
	cachedAt  time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds an Aggregator backed by store (may be nil, in which case
// records are aggregated in memory but never persisted) and, optionally, an
// access gate whose blacklist cache the persistence worker refreshes every
// BlacklistRefreshPeriod.
func New(store ports.MetricsStore, gate BlacklistRefresher, log *logger.StyledLogger) *Aggregator {
	a := &Aggregator{
		queue:  make(chan domain.RequestLog, constants.RequestLogQueueCapacity),
		store:  store,
		gate:   gate,
		log:    log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for i := range a.shards {
		a.shards[i] = newShard()
	}
	go a.persistenceLoop()
	return a
}

// Enqueue updates the sharded real-time aggregate synchronously, then makes
// a single non-blocking attempt to hand the record to the persistence
// worker; on a full queue it drops the record and counts it.
func (a *Aggregator) Enqueue(rec domain.RequestLog) {
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().Unix()
	}
	idx := shardIndex(rec.ListenAddr)
	a.shards[idx].add(rec)

	select {
	case a.queue <- rec:
	default:
		a.dropped.Add(1)
	}
}

// Close stops the persistence worker and waits for its final flush.
func (a *Aggregator) Close() {
	close(a.stopCh)
	<-a.doneCh
}

// Snapshot returns the cached merge of all shards, only
// recomputing when the cache has gone stale past MetricsCacheTTL.
func (a *Aggregator) Snapshot() ports.MetricsPayload {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()

	if time.Since(a.cachedAt) < constants.MetricsCacheTTL {
		return a.cached
	}

	merged := a.merge()
	a.cached = merged
	a.cachedAt = time.Now()
	return merged
}

func (a *Aggregator) merge() ports.MetricsPayload {
	bySecond := make(map[string]map[int64]domain.Bucket)
	byMinute := make(map[string]map[int64]domain.Bucket)

	for _, s := range a.shards {
		sec, min := s.snapshot()
		mergeInto(bySecond, sec)
		mergeInto(byMinute, min)
	}

	series := make(map[string]ports.LabelSeries)
	labels := xsync.NewMap[string, struct{}]()
	for label := range bySecond {
		labels.Store(label, struct{}{})
	}
	for label := range byMinute {
		labels.Store(label, struct{}{})
	}
	labels.Range(func(label string, _ struct{}) bool {
		series[label] = ports.LabelSeries{
			PerSecond: toPoints(bySecond[label]),
			PerMinute: toPoints(byMinute[label]),
		}
		return true
	})

	return ports.MetricsPayload{
		GeneratedAt: time.Now(),
		Series:      series,
		Dropped:     a.dropped.Load(),
	}
}

func mergeInto(dst map[string]map[int64]domain.Bucket, src map[string]map[int64]domain.Bucket) {
	for label, byTS := range src {
		out, ok := dst[label]
		if !ok {
			out = make(map[int64]domain.Bucket)
			dst[label] = out
		}
		for ts, b := range byTS {
			existing := out[ts]
			existing.Count += b.Count
			existing.S2xx += b.S2xx
			existing.S3xx += b.S3xx
			existing.S4xx += b.S4xx
			existing.S5xx += b.S5xx
			existing.S0 += b.S0
			existing.LatencySumMs += b.LatencySumMs
			if b.LatencyMaxMs > existing.LatencyMaxMs {
				existing.LatencyMaxMs = b.LatencyMaxMs
			}
			out[ts] = existing
		}
	}
}

func toPoints(byTS map[int64]domain.Bucket) []ports.SeriesPoint {
	points := make([]ports.SeriesPoint, 0, len(byTS))
	for ts, b := range byTS {
		avg := 0.0
		if b.Count > 0 {
			avg = round4(b.LatencySumMs / float64(b.Count))
		}
		points = append(points, ports.SeriesPoint{
			Timestamp:    ts,
			Count:        b.Count,
			S2xx:         b.S2xx,
			S3xx:         b.S3xx,
			S4xx:         b.S4xx,
			S5xx:         b.S5xx,
			S0:           b.S0,
			AvgLatencyMs: avg,
			MaxLatencyMs: round4(b.LatencyMaxMs),
		})
	}
	return points
}

// round4 rounds to 4 decimal places via the "×10000, round, ÷10000" recipe
// avoiding the float drift of naive formatting.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// persistenceLoop is the single consumer draining the bounded queue: batches
// up to FlushBatchSize, flushes on fill or after FlushInterval (5s) with no
// new record, and refreshes the blacklist cache every BlacklistRefreshPeriod
// (10s) on its own ticker.
func (a *Aggregator) persistenceLoop() {
	defer close(a.doneCh)

	batch := make([]domain.RequestLog, 0, constants.FlushBatchSize)
	flushTimer := time.NewTimer(constants.FlushInterval)
	defer flushTimer.Stop()
	blacklistTicker := time.NewTicker(constants.BlacklistRefreshPeriod)
	defer blacklistTicker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		a.flushBatch(batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-a.stopCh:
			flush()
			return
		case rec := <-a.queue:
			batch = append(batch, rec)
			if len(batch) >= constants.FlushBatchSize {
				flush()
			}
			if !flushTimer.Stop() {
				<-flushTimer.C
			}
			flushTimer.Reset(constants.FlushInterval)
		case <-flushTimer.C:
			flush()
			flushTimer.Reset(constants.FlushInterval)
		case <-blacklistTicker.C:
			if a.gate != nil {
				a.gate.RefreshBlacklistCache()
			}
		}
	}
}

func (a *Aggregator) flushBatch(batch []domain.RequestLog) {
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for start := 0; start < len(batch); start += constants.FlushChunkSize {
		end := start + constants.FlushChunkSize
		if end > len(batch) {
			end = len(batch)
		}
		if err := a.store.InsertBatch(ctx, batch[start:end]); err != nil && a.log != nil {
			a.log.Warn("dropping metrics chunk after insert failure", "rows", end-start, "error", err)
		}
	}
}
