//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

// Integration tests require running ClickHouse.
// Run with: go test -tags=integration ./internal/storage/...

func setupClickHouseTest(t *testing.T) *ClickHouseMetrics {
	t.Helper()

	config := &ClickHouseConfig{
		Addresses:     []string{"localhost:9000"},
		Database:      "default",
		Username:      "default",
		Table:         "spans_test",
		MaxOpenConns:  2,
		MaxIdleConns:  2,
		DialTimeout:   5 * time.Second,
		Compression:   true,
		RetentionDays: 1,
	}

	m := NewClickHouseMetrics(config)
	if err := m.Open(); err != nil {
		t.Skipf("ClickHouse not available: %v", err)
	}
	require.NoError(t, m.Migrate())

	t.Cleanup(func() {
		m.db.Exec("DROP TABLE IF EXISTS spans_test")
		m.Close()
	})
	return m
}

func TestClickHouseMetrics_GetMetric_Integration(t *testing.T) {
	m := setupClickHouseTest(t)
	ctx := context.Background()

	now := time.Now().UTC()
	rows := []struct {
		status   string
		duration float64
	}{
		{"OK", 10}, {"OK", 20}, {"ERROR", 30}, {"OK", 40},
	}
	for i, r := range rows {
		_, err := m.db.ExecContext(ctx,
			"INSERT INTO spans_test (trace_id, span_id, project_id, name, start_time, duration_ms, status_code) VALUES (?, ?, ?, ?, ?, ?, ?)",
			"trace", string(rune('a'+i)), "proj-1", "GET /", now.Add(-time.Minute), r.duration, r.status,
		)
		require.NoError(t, err)
	}

	result, err := m.GetMetric(ctx, "proj-1", models.MetricErrorRate, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.SampleCount)
	assert.InDelta(t, 25.0, result.Value, 0.001)

	empty, err := m.GetMetric(ctx, "proj-missing", models.MetricLatencyP95, 5)
	require.NoError(t, err)
	assert.Zero(t, empty.SampleCount)
	assert.Zero(t, empty.Value)
}
