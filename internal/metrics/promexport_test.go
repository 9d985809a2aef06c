package metrics

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/sslproxymanager/core/internal/core/domain"
	"github.com/sslproxymanager/core/internal/logger"
	"github.com/sslproxymanager/core/theme"
)

func testLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), theme.Default())
}

func TestPromExporter_CopiesShardTotalsIntoCounters(t *testing.T) {
	agg := New(nil, nil, testLogger())
	defer agg.Close()

	agg.Enqueue(domain.RequestLog{Timestamp: time.Now().Unix(), ListenAddr: "edge", Status: 200})
	agg.Enqueue(domain.RequestLog{Timestamp: time.Now().Unix(), ListenAddr: "edge", Status: 200})

	reg := prometheus.NewRegistry()
	exp := NewPromExporter(agg, reg, testLogger(), time.Hour)
	defer exp.Stop()

	exp.copyOnce()

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() != "sslproxymanager_requests_total" {
			continue
		}
		for _, m := range mf.Metric {
			if labelValue(m, "listen_addr") == "edge" {
				require.GreaterOrEqual(t, m.GetCounter().GetValue(), float64(2))
				found = true
			}
		}
	}
	require.True(t, found, "expected a counter sample labeled listen_addr=edge")
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.Label {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
