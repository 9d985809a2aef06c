// Package metrics implements the sharded real-time aggregation and batch
// persistence pipeline: an in-process hot path that never
// blocks on the database, and a single worker that drains a bounded queue.
package metrics

import (
	"sync"

	"github.com/sslproxymanager/core/internal/core/constants"
	"github.com/sslproxymanager/core/internal/core/domain"
)

const globalLabel = "global"

// shard is one independently-locked partition of the real-time aggregate. A
// request touches exactly one shard, selected by hashing its listen address.
type shard struct {
	mu        sync.Mutex
	perSecond map[string]map[int64]*domain.Bucket
	perMinute map[string]map[int64]*domain.Bucket
}

func newShard() *shard {
	return &shard{
		perSecond: make(map[string]map[int64]*domain.Bucket),
		perMinute: make(map[string]map[int64]*domain.Bucket),
	}
}

// add folds one request into both the "global" and listen-address-labeled
// aggregates, at both granularities, then prunes retention in place.
func (s *shard) add(rec domain.RequestLog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secondTs := rec.Timestamp
	minuteTs := rec.Timestamp - (rec.Timestamp % 60)

	s.bump(s.perSecond, globalLabel, secondTs, rec)
	s.bump(s.perMinute, globalLabel, minuteTs, rec)
	if rec.ListenAddr != "" && rec.ListenAddr != globalLabel {
		s.bump(s.perSecond, rec.ListenAddr, secondTs, rec)
		s.bump(s.perMinute, rec.ListenAddr, minuteTs, rec)
	}

	s.prune(s.perSecond, secondTs, int64(constants.PerSecondRetention.Seconds()))
	s.prune(s.perMinute, minuteTs, int64(constants.PerMinuteRetention.Seconds()))
}

func (s *shard) bump(series map[string]map[int64]*domain.Bucket, label string, ts int64, rec domain.RequestLog) {
	byTS, ok := series[label]
	if !ok {
		byTS = make(map[int64]*domain.Bucket)
		series[label] = byTS
	}
	bucket, ok := byTS[ts]
	if !ok {
		bucket = &domain.Bucket{}
		byTS[ts] = bucket
	}
	bucket.Add(rec.Status, rec.LatencyMs)
}

func (s *shard) prune(series map[string]map[int64]*domain.Bucket, now int64, retentionSec int64) {
	cutoff := now - retentionSec
	for _, byTS := range series {
		for ts := range byTS {
			if ts < cutoff {
				delete(byTS, ts)
			}
		}
	}
}

// snapshot returns a deep copy of both series maps for merging outside the lock.
func (s *shard) snapshot() (perSecond, perMinute map[string]map[int64]domain.Bucket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	perSecond = cloneSeries(s.perSecond)
	perMinute = cloneSeries(s.perMinute)
	return
}

func cloneSeries(series map[string]map[int64]*domain.Bucket) map[string]map[int64]domain.Bucket {
	out := make(map[string]map[int64]domain.Bucket, len(series))
	for label, byTS := range series {
		inner := make(map[int64]domain.Bucket, len(byTS))
		for ts, b := range byTS {
			inner[ts] = *b
		}
		out[label] = inner
	}
	return out
}

// fnv1a64 hashes a label to pick a shard index, matching the data model's
// "shard = fnv1a_64(label) mod 64".
func fnv1a64(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

func shardIndex(label string) int {
	if label == "" {
		label = globalLabel
	}
	return int(fnv1a64(label) % constants.ShardCount)
}
