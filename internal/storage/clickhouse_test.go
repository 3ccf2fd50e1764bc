package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

func TestMetricQuery(t *testing.T) {
	tests := []struct {
		metric models.MetricType
		want   string
	}{
		{models.MetricErrorRate, "countIf(status_code = 'ERROR') * 100.0 / count()"},
		{models.MetricLatencyP50, "quantile(0.5)(duration_ms)"},
		{models.MetricLatencyP95, "quantile(0.95)(duration_ms)"},
		{models.MetricLatencyP99, "quantile(0.99)(duration_ms)"},
	}

	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			query, err := metricQuery("spans", tt.metric)
			require.NoError(t, err)
			assert.Contains(t, query, tt.want)
			assert.Contains(t, query, "FROM spans")
			assert.Contains(t, query, "count() AS samples")
		})
	}

	_, err := metricQuery("spans", models.MetricType("throughput"))
	assert.Error(t, err)
}

func TestNewClickHouseMetrics_Defaults(t *testing.T) {
	cfg := &ClickHouseConfig{Addresses: []string{"localhost:9000"}}
	m := NewClickHouseMetrics(cfg)

	assert.Equal(t, "spans", cfg.Table)
	assert.Equal(t, 5, cfg.MaxOpenConns)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.NotZero(t, cfg.QueryTimeout)

	_, err := m.GetMetric(context.Background(), "p", models.MetricErrorRate, 5)
	assert.Error(t, err, "unopened provider should refuse queries")
	assert.NoError(t, m.Close())
}
