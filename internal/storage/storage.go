// Package storage provides persistence for alerts, channels and history,
// and metric queries over span data.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// MetricResult is a metric value computed over a time window.
type MetricResult struct {
	Value       float64
	SampleCount int64
	WindowStart time.Time
	WindowEnd   time.Time
}

// MetricProvider computes a project metric over the trailing window.
type MetricProvider interface {
	GetMetric(ctx context.Context, projectID string, metric models.MetricType, windowMins int) (*MetricResult, error)
}

// StateUpdate describes how an evaluation changes an alert's timestamps.
// LastEvaluatedAt is always set to At.
type StateUpdate struct {
	At time.Time
	// StateChanged touches state_changed_at.
	StateChanged bool
	// Triggered touches last_triggered_at.
	Triggered bool
}

// AlertStore is what the evaluator needs from persistence. Implementations
// must apply UpdateAlertState atomically per alert.
type AlertStore interface {
	// GetEligibleAlerts returns enabled alerts with their channel links.
	// An empty severity returns alerts of every severity.
	GetEligibleAlerts(ctx context.Context, severity models.Severity) ([]*models.AlertWithProject, error)
	UpdateAlertState(ctx context.Context, id string, state models.AlertState, meta StateUpdate) error
	GetMetric(ctx context.Context, projectID string, metric models.MetricType, windowMins int) (*MetricResult, error)
	RecordHistory(ctx context.Context, entry *models.AlertHistoryEntry) error
}

// ChannelSource resolves notification channels by id.
type ChannelSource interface {
	GetChannels(ctx context.Context, ids []string) ([]*models.NotificationChannel, error)
}

// HistoryRecorder appends alert history entries.
type HistoryRecorder interface {
	RecordHistory(ctx context.Context, entry *models.AlertHistoryEntry) error
}

// ProjectRepository defines operations for project management.
type ProjectRepository interface {
	Upsert(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	List(ctx context.Context) ([]*models.Project, error)
}

// AlertRepository defines operations for alert definitions and state.
type AlertRepository interface {
	// Upsert writes the alert definition. Lifecycle state of an existing
	// alert is preserved.
	Upsert(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	ListEnabled(ctx context.Context, severity models.Severity) ([]*models.AlertWithProject, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	UpdateState(ctx context.Context, id string, state models.AlertState, meta StateUpdate) error
}

// ChannelRepository defines operations for notification channels.
type ChannelRepository interface {
	Upsert(ctx context.Context, channel *models.NotificationChannel) error
	GetByID(ctx context.Context, id string) (*models.NotificationChannel, error)
	GetMany(ctx context.Context, ids []string) ([]*models.NotificationChannel, error)
	ListByProject(ctx context.Context, projectID string) ([]*models.NotificationChannel, error)
}

// AlertHistoryRepository defines operations for alert history.
type AlertHistoryRepository interface {
	Create(ctx context.Context, entry *models.AlertHistoryEntry) error
	ListByAlert(ctx context.Context, alertID string, limit, offset int) ([]*models.AlertHistoryEntry, int64, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
