package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string

	// Database is the ClickHouse database name.
	Database string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// Table holds the span rows metrics are computed from.
	Table string

	MaxOpenConns int
	MaxIdleConns int

	// DialTimeout is the connection timeout.
	DialTimeout time.Duration

	// QueryTimeout bounds a single metric query.
	QueryTimeout time.Duration

	// Compression enables LZ4 compression.
	Compression bool

	// RetentionDays is the TTL in days for span retention.
	RetentionDays int
}

// ClickHouseMetrics computes alert metrics from spans stored in ClickHouse.
type ClickHouseMetrics struct {
	config *ClickHouseConfig
	db     *sql.DB
	now    func() time.Time
}

// NewClickHouseMetrics creates a metric provider. Call Open before use.
func NewClickHouseMetrics(config *ClickHouseConfig) *ClickHouseMetrics {
	if config.Table == "" {
		config.Table = "spans"
	}
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 5
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.QueryTimeout == 0 {
		config.QueryTimeout = 10 * time.Second
	}
	if config.RetentionDays == 0 {
		config.RetentionDays = 30
	}

	return &ClickHouseMetrics{config: config, now: time.Now}
}

// Open initializes the ClickHouse connection.
func (m *ClickHouseMetrics) Open() error {
	opts := &clickhouse.Options{
		Addr: m.config.Addresses,
		Auth: clickhouse.Auth{
			Database: m.config.Database,
			Username: m.config.Username,
			Password: m.config.Password,
		},
		DialTimeout:  m.config.DialTimeout,
		MaxOpenConns: m.config.MaxOpenConns,
		MaxIdleConns: m.config.MaxIdleConns,
	}

	if m.config.Compression {
		opts.Compression = &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		}
	}

	db := clickhouse.OpenDB(opts)

	ctx, cancel := context.WithTimeout(context.Background(), m.config.DialTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	m.db = db
	return nil
}

// Close closes the database connection.
func (m *ClickHouseMetrics) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Ping checks the connection health.
func (m *ClickHouseMetrics) Ping(ctx context.Context) error {
	if m.db == nil {
		return fmt.Errorf("clickhouse metrics not open")
	}
	return m.db.PingContext(ctx)
}

// Migrate creates the spans table if it doesn't exist.
func (m *ClickHouseMetrics) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			trace_id String,
			span_id String,
			project_id LowCardinality(String),
			name String,
			start_time DateTime64(3, 'UTC'),
			duration_ms Float64,
			status_code LowCardinality(String),
			_date Date DEFAULT toDate(start_time)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(_date)
		ORDER BY (project_id, start_time, trace_id)
		TTL _date + INTERVAL %d DAY DELETE
		SETTINGS index_granularity = 8192
	`, m.config.Table, m.config.RetentionDays)

	if _, err := m.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create %s table: %w", m.config.Table, err)
	}
	return nil
}

// GetMetric computes the metric over the trailing windowMins minutes.
// Error rate is a percentage of spans with status ERROR; latencies are in
// milliseconds.
func (m *ClickHouseMetrics) GetMetric(ctx context.Context, projectID string, metric models.MetricType, windowMins int) (*MetricResult, error) {
	if m.db == nil {
		return nil, fmt.Errorf("clickhouse metrics not open")
	}
	if windowMins <= 0 {
		return nil, fmt.Errorf("window must be positive, got %d", windowMins)
	}

	query, err := metricQuery(m.config.Table, metric)
	if err != nil {
		return nil, err
	}

	end := m.now().UTC()
	start := end.Add(-time.Duration(windowMins) * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, m.config.QueryTimeout)
	defer cancel()

	var value sql.NullFloat64
	var samples uint64
	err = m.db.QueryRowContext(ctx, query, projectID, start, end).Scan(&value, &samples)
	if err != nil {
		return nil, fmt.Errorf("query %s for project %s: %w", metric, projectID, err)
	}

	result := &MetricResult{
		SampleCount: int64(samples),
		WindowStart: start,
		WindowEnd:   end,
	}
	if samples > 0 && value.Valid {
		result.Value = value.Float64
	}
	return result, nil
}

// metricQuery returns the aggregate query for a metric type. Each query
// takes project id, window start and window end, and yields value and
// sample count.
func metricQuery(table string, metric models.MetricType) (string, error) {
	var expr string
	switch metric {
	case models.MetricErrorRate:
		expr = "if(count() = 0, 0, countIf(status_code = 'ERROR') * 100.0 / count())"
	case models.MetricLatencyP50:
		expr = "quantile(0.5)(duration_ms)"
	case models.MetricLatencyP95:
		expr = "quantile(0.95)(duration_ms)"
	case models.MetricLatencyP99:
		expr = "quantile(0.99)(duration_ms)"
	default:
		return "", fmt.Errorf("unsupported metric type %q", metric)
	}

	return fmt.Sprintf(`
		SELECT %s AS value, count() AS samples
		FROM %s
		WHERE project_id = ? AND start_time >= ? AND start_time < ?
	`, expr, table), nil
}
