package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/sslproxymanager/core/internal/core/domain"
	"github.com/sslproxymanager/core/internal/core/ports"
)

// SQLiteStore is the durable side of the metrics core: two
// tables, WAL journaling, and the historical/dashboard query surface. SQLite
// has no driver anywhere in the teacher corpus; modernc.org/sqlite is used
// because it is pure Go (no cgo), matching the rest of the stack's
// no-cgo posture.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) the embedded database at path
// and applies the WAL/synchronous tuning for a single-writer workload.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid pool contention on WAL

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates the schema on first open and adds matched_route_id to an
// existing request_logs table that predates it.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS request_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			listen_addr TEXT NOT NULL,
			client_ip TEXT NOT NULL,
			remote_ip TEXT NOT NULL,
			method TEXT NOT NULL,
			request_path TEXT NOT NULL,
			request_host TEXT NOT NULL,
			status_code INTEGER NOT NULL,
			upstream TEXT NOT NULL,
			latency_ms REAL NOT NULL,
			user_agent TEXT NOT NULL,
			referer TEXT NOT NULL,
			matched_route_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_timestamp ON request_logs(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_listen_ts ON request_logs(listen_addr, timestamp)`,
		`CREATE TABLE IF NOT EXISTS blacklist (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ip TEXT UNIQUE NOT NULL,
			reason TEXT,
			expires_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return s.addColumnIfMissing(ctx, "request_logs", "matched_route_id", "TEXT NOT NULL DEFAULT ''")
}

func (s *SQLiteStore) addColumnIfMissing(ctx context.Context, table, column, decl string) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notnull    int
			dfltValue  sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

// InsertBatch bulk-inserts a chunk inside a single transaction, matching the
// "chunks of 500 rows" flush policy.
func (s *SQLiteStore) InsertBatch(ctx context.Context, recs []domain.RequestLog) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO request_logs
		(timestamp, listen_addr, client_ip, remote_ip, method, request_path, request_host,
		 status_code, upstream, latency_ms, user_agent, referer, matched_route_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx, r.Timestamp, r.ListenAddr, r.ClientIP, r.RemoteIP, r.Method,
			r.Path, r.Host, r.Status, r.Upstream, r.LatencyMs, r.UserAgent, r.Referer, r.MatchedRoute); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpsertBlacklist(ctx context.Context, entry domain.BlacklistEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO blacklist (ip, reason, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ip) DO UPDATE SET reason=excluded.reason, expires_at=excluded.expires_at`,
		entry.IP, entry.Reason, entry.ExpiresAt, entry.CreatedAt)
	return err
}

func (s *SQLiteStore) RemoveBlacklist(ctx context.Context, ip string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blacklist WHERE ip = ?`, ip)
	return err
}

func (s *SQLiteStore) LoadBlacklist(ctx context.Context) ([]domain.BlacklistEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ip, COALESCE(reason, ''), expires_at, created_at FROM blacklist`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BlacklistEntry
	for rows.Next() {
		var e domain.BlacklistEntry
		if err := rows.Scan(&e.IP, &e.Reason, &e.ExpiresAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// QueryRequestLogs answers a raw, newest-first request-log query, capped at
// limit rows (a limit <= 0 defaults to 100).
func (s *SQLiteStore) QueryRequestLogs(ctx context.Context, start, end int64, listenAddr string, limit int) ([]domain.RequestLog, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT timestamp, listen_addr, client_ip, remote_ip, method, request_path, request_host,
		status_code, upstream, latency_ms, user_agent, referer, matched_route_id
		FROM request_logs WHERE timestamp >= ? AND timestamp < ?`
	args := []any{start, end}
	if listenAddr != "" {
		query += ` AND listen_addr = ?`
		args = append(args, listenAddr)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RequestLog
	for rows.Next() {
		var r domain.RequestLog
		if err := rows.Scan(&r.Timestamp, &r.ListenAddr, &r.ClientIP, &r.RemoteIP, &r.Method, &r.Path, &r.Host,
			&r.Status, &r.Upstream, &r.LatencyMs, &r.UserAgent, &r.Referer, &r.MatchedRoute); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type row struct {
	timestamp int64
	status    int
	upstream  string
	path      string
	clientIP  string
	route     string
	latencyMs float64
}

func (s *SQLiteStore) loadRange(ctx context.Context, start, end int64, listenAddr string) ([]row, error) {
	query := `SELECT timestamp, status_code, upstream, request_path, client_ip, matched_route_id, latency_ms
		FROM request_logs WHERE timestamp >= ? AND timestamp < ?`
	args := []any{start, end}
	if listenAddr != "" {
		query += ` AND listen_addr = ?`
		args = append(args, listenAddr)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.timestamp, &r.status, &r.upstream, &r.path, &r.clientIP, &r.route, &r.latencyMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// granularity picks the bucket size for a query window: <1h -> 1s, <48h -> 60s, else 300s.
func granularity(start, end int64) int64 {
	span := end - start
	switch {
	case span < 3600:
		return 1
	case span < 48*3600:
		return 60
	default:
		return 300
	}
}

var latencyBucketEdges = [12]float64{5, 10, 20, 50, 100, 150, 250, 400, 700, 1000, 2000, math.Inf(1)}
var latencyBucketMedians = [12]float64{2.5, 7.5, 15, 35, 75, 125, 200, 325, 550, 850, 1500, 3000}

func latencyBucketIndex(latencyMs float64) int {
	for i, edge := range latencyBucketEdges {
		if latencyMs < edge {
			return i
		}
	}
	return 11
}

var hostStrip = regexp.MustCompile(`^https?://`)
var wwwStrip = regexp.MustCompile(`^www\.`)
var pathStrip = regexp.MustCompile(`[/?].*$`)

func upstreamHost(upstream string) string {
	h := hostStrip.ReplaceAllString(upstream, "")
	h = wwwStrip.ReplaceAllString(h, "")
	h = pathStrip.ReplaceAllString(h, "")
	return h
}

// QueryHistorical answers a historical metrics query: per-bucket
// aggregates, top lists, and a 12-bucket latency histogram with estimated
// p50/p95/p99.
func (s *SQLiteStore) QueryHistorical(ctx context.Context, start, end int64, listenAddr string) (ports.HistoricalResult, error) {
	if end <= start {
		return ports.HistoricalResult{}, nil
	}

	rows, err := s.loadRange(ctx, start, end, listenAddr)
	if err != nil {
		return ports.HistoricalResult{}, err
	}

	gran := granularity(start, end)
	buckets := make(map[int64]*domain.Bucket)
	upstreamCounts := map[string]int64{}
	errorPathCounts := map[string]int64{}
	errorUpstreamCounts := map[string]int64{}
	var histogram [12]int64
	var total int64

	for _, r := range rows {
		ts := (r.timestamp / gran) * gran
		b, ok := buckets[ts]
		if !ok {
			b = &domain.Bucket{}
			buckets[ts] = b
		}
		b.Add(r.status, r.latencyMs)

		if r.upstream != "" {
			upstreamCounts[upstreamHost(r.upstream)]++
		}
		if r.status >= 400 {
			errorPathCounts[r.path]++
			if r.upstream != "" {
				errorUpstreamCounts[upstreamHost(r.upstream)]++
			}
		}
		histogram[latencyBucketIndex(r.latencyMs)]++
		total++
	}

	result := ports.HistoricalResult{
		Buckets:           bucketsToPoints(buckets),
		TopUpstreams:      topN(upstreamCounts, 20),
		TopErrorPaths:     topN(errorPathCounts, 10),
		TopErrorUpstreams: topN(errorUpstreamCounts, 10),
	}
	copy(result.LatencyHistogram[:], histogram[:])
	result.P50 = estimatePercentile(histogram, total, 0.50)
	result.P95 = estimatePercentile(histogram, total, 0.95)
	result.P99 = estimatePercentile(histogram, total, 0.99)
	return result, nil
}

func estimatePercentile(histogram [12]int64, total int64, p float64) float64 {
	if total == 0 {
		return 0
	}
	target := int64(math.Ceil(float64(total) * p))
	var cumulative int64
	for i, c := range histogram {
		cumulative += c
		if cumulative >= target {
			return latencyBucketMedians[i]
		}
	}
	return latencyBucketMedians[11]
}

func bucketsToPoints(buckets map[int64]*domain.Bucket) []ports.SeriesPoint {
	points := make([]ports.SeriesPoint, 0, len(buckets))
	for ts, b := range buckets {
		avg := 0.0
		if b.Count > 0 {
			avg = round4(b.LatencySumMs / float64(b.Count))
		}
		points = append(points, ports.SeriesPoint{
			Timestamp: ts, Count: b.Count, S2xx: b.S2xx, S3xx: b.S3xx, S4xx: b.S4xx, S5xx: b.S5xx, S0: b.S0,
			AvgLatencyMs: avg, MaxLatencyMs: round4(b.LatencyMaxMs),
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })
	return points
}

func topN(counts map[string]int64, limit int) []ports.NamedCount {
	out := make([]ports.NamedCount, 0, len(counts))
	for name, count := range counts {
		if strings.TrimSpace(name) == "" {
			continue
		}
		out = append(out, ports.NamedCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// QueryDashboard answers a dashboard summary query: the same per-bucket
// aggregation plus top paths/client IPs/matched routes, and an overall
// 2xx/total success rate.
func (s *SQLiteStore) QueryDashboard(ctx context.Context, start, end int64, granularitySec int64) (ports.DashboardResult, error) {
	rows, err := s.loadRange(ctx, start, end, "")
	if err != nil {
		return ports.DashboardResult{}, err
	}
	if granularitySec <= 0 {
		granularitySec = granularity(start, end)
	}

	buckets := make(map[int64]*domain.Bucket)
	pathCounts := map[string]int64{}
	clientIPCounts := map[string]int64{}
	routeCounts := map[string]int64{}
	errorRouteCounts := map[string]int64{}
	var total, success int64

	for _, r := range rows {
		ts := (r.timestamp / granularitySec) * granularitySec
		b, ok := buckets[ts]
		if !ok {
			b = &domain.Bucket{}
			buckets[ts] = b
		}
		b.Add(r.status, r.latencyMs)

		pathCounts[r.path]++
		clientIPCounts[r.clientIP]++
		if strings.TrimSpace(r.route) != "" {
			routeCounts[r.route]++
			if r.status >= 400 {
				errorRouteCounts[r.route]++
			}
		}
		total++
		if r.status >= 200 && r.status < 300 {
			success++
		}
	}

	result := ports.DashboardResult{
		Buckets:        bucketsToPoints(buckets),
		TopPaths:       topN(pathCounts, 10),
		TopClientIPs:   topN(clientIPCounts, 10),
		TopRoutes:      topN(routeCounts, 10),
		TopErrorRoutes: topN(errorRouteCounts, 10),
	}
	if total > 0 {
		result.SuccessRate = round4(float64(success) / float64(total))
	}
	return result, nil
}
