package storage

import (
	"context"
	"fmt"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

// DirectStore is the single-process AlertStore backed by SQLite for alert
// state and history and a MetricProvider for metric values.
type DirectStore struct {
	sqlite  *SQLiteStorage
	metrics MetricProvider
}

// NewDirectStore creates an AlertStore over an open SQLite storage.
func NewDirectStore(sqlite *SQLiteStorage, metrics MetricProvider) *DirectStore {
	return &DirectStore{sqlite: sqlite, metrics: metrics}
}

// GetEligibleAlerts returns enabled alerts, optionally of one severity.
func (s *DirectStore) GetEligibleAlerts(ctx context.Context, severity models.Severity) ([]*models.AlertWithProject, error) {
	return s.sqlite.Alerts().ListEnabled(ctx, severity)
}

// UpdateAlertState persists one evaluation outcome atomically.
func (s *DirectStore) UpdateAlertState(ctx context.Context, id string, state models.AlertState, meta StateUpdate) error {
	return s.sqlite.Alerts().UpdateState(ctx, id, state, meta)
}

// GetMetric delegates to the metric provider.
func (s *DirectStore) GetMetric(ctx context.Context, projectID string, metric models.MetricType, windowMins int) (*MetricResult, error) {
	if s.metrics == nil {
		return nil, fmt.Errorf("no metric provider configured")
	}
	return s.metrics.GetMetric(ctx, projectID, metric, windowMins)
}

// RecordHistory appends a history entry.
func (s *DirectStore) RecordHistory(ctx context.Context, entry *models.AlertHistoryEntry) error {
	return s.sqlite.AlertHistory().Create(ctx, entry)
}

// GetChannels resolves enabled channels in the order of ids.
func (s *DirectStore) GetChannels(ctx context.Context, ids []string) ([]*models.NotificationChannel, error) {
	return s.sqlite.Channels().GetMany(ctx, ids)
}

var (
	_ AlertStore      = (*DirectStore)(nil)
	_ ChannelSource   = (*DirectStore)(nil)
	_ HistoryRecorder = (*DirectStore)(nil)
	_ MetricProvider  = (*ClickHouseMetrics)(nil)
)
