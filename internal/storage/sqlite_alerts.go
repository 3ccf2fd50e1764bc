package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

const alertColumns = `a.id, a.project_id, a.name, a.metric_type, a.threshold, a.operator,
	a.window_mins, a.severity, a.pending_mins, a.cooldown_mins, a.state,
	a.state_changed_at, a.last_triggered_at, a.last_evaluated_at, a.enabled,
	a.created_at, a.updated_at`

type sqliteAlertRepo struct {
	db *sql.DB
}

func (r *sqliteAlertRepo) Upsert(ctx context.Context, alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.State == "" {
		alert.State = models.StateInactive
	}
	now := time.Now()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO alerts (id, project_id, name, metric_type, threshold, operator,
			window_mins, severity, pending_mins, cooldown_mins, state, enabled,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id, name = excluded.name,
			metric_type = excluded.metric_type, threshold = excluded.threshold,
			operator = excluded.operator, window_mins = excluded.window_mins,
			severity = excluded.severity, pending_mins = excluded.pending_mins,
			cooldown_mins = excluded.cooldown_mins, enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`
	_, err = tx.ExecContext(ctx, query,
		alert.ID, alert.ProjectID, alert.Name, string(alert.MetricType), alert.Threshold, string(alert.Operator),
		alert.WindowMins, string(alert.Severity), nullInt(alert.PendingMins), nullInt(alert.CooldownMins),
		string(alert.State), boolToInt(alert.Enabled),
		alert.CreatedAt.UnixMilli(), alert.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert alert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM alert_channels WHERE alert_id = ?", alert.ID); err != nil {
		return fmt.Errorf("clear alert channels: %w", err)
	}
	for i, channelID := range alert.ChannelIDs {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO alert_channels (alert_id, channel_id, position) VALUES (?, ?, ?)",
			alert.ID, channelID, i,
		)
		if err != nil {
			return fmt.Errorf("link channel %s: %w", channelID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit alert: %w", err)
	}
	return nil
}

func (r *sqliteAlertRepo) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + `, p.name FROM alerts a
		JOIN projects p ON p.id = a.project_id WHERE a.id = ?`
	awp, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
		}
		return nil, err
	}

	links, err := r.channelLinks(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	awp.ChannelIDs = nonNil(links[id])
	return awp.Alert, nil
}

func (r *sqliteAlertRepo) ListEnabled(ctx context.Context, severity models.Severity) ([]*models.AlertWithProject, error) {
	query := `SELECT ` + alertColumns + `, p.name FROM alerts a
		JOIN projects p ON p.id = a.project_id WHERE a.enabled = 1`
	args := []any{}
	if severity != "" {
		query += " AND a.severity = ?"
		args = append(args, string(severity))
	}
	query += " ORDER BY a.created_at, a.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}

	var alerts []*models.AlertWithProject
	for rows.Next() {
		awp, err := scanAlert(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		alerts = append(alerts, awp)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	rows.Close()

	if len(alerts) == 0 {
		return alerts, nil
	}

	ids := make([]string, len(alerts))
	for i, a := range alerts {
		ids[i] = a.ID
	}
	links, err := r.channelLinks(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, a := range alerts {
		a.ChannelIDs = nonNil(links[a.ID])
	}
	return alerts, nil
}

func (r *sqliteAlertRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE alerts SET enabled = ?, updated_at = ? WHERE id = ?",
		boolToInt(enabled), time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("set alert enabled: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateState applies one evaluation outcome in a single statement so that
// concurrent writers cannot interleave the state and timestamp columns.
func (r *sqliteAlertRepo) UpdateState(ctx context.Context, id string, state models.AlertState, meta StateUpdate) error {
	at := meta.At
	if at.IsZero() {
		at = time.Now()
	}
	ms := at.UnixMilli()

	query := `
		UPDATE alerts SET
			state = ?,
			last_evaluated_at = ?,
			state_changed_at = CASE WHEN ? = 1 THEN ? ELSE state_changed_at END,
			last_triggered_at = CASE WHEN ? = 1 THEN ? ELSE last_triggered_at END
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		string(state), ms,
		boolToInt(meta.StateChanged), ms,
		boolToInt(meta.Triggered), ms,
		id,
	)
	if err != nil {
		return fmt.Errorf("update alert state: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return nil
}

// channelLinks returns the enabled channel ids per alert, in link order.
func (r *sqliteAlertRepo) channelLinks(ctx context.Context, alertIDs []string) (map[string][]string, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(alertIDs)), ",")
	query := `
		SELECT ac.alert_id, ac.channel_id FROM alert_channels ac
		JOIN notification_channels c ON c.id = ac.channel_id
		WHERE c.enabled = 1 AND ac.alert_id IN (` + placeholders + `)
		ORDER BY ac.alert_id, ac.position
	`
	args := make([]any, len(alertIDs))
	for i, id := range alertIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alert channels: %w", err)
	}
	defer rows.Close()

	links := make(map[string][]string, len(alertIDs))
	for rows.Next() {
		var alertID, channelID string
		if err := rows.Scan(&alertID, &channelID); err != nil {
			return nil, fmt.Errorf("scan alert channel: %w", err)
		}
		links[alertID] = append(links[alertID], channelID)
	}
	return links, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*models.AlertWithProject, error) {
	a := &models.Alert{}
	var (
		pendingMins, cooldownMins                       sql.NullInt64
		stateChangedAt, lastTriggeredAt, lastEvaluatedAt sql.NullInt64
		enabled                                         int
		createdAt, updatedAt                            int64
		projectName                                     string
	)
	err := row.Scan(&a.ID, &a.ProjectID, &a.Name, &a.MetricType, &a.Threshold, &a.Operator,
		&a.WindowMins, &a.Severity, &pendingMins, &cooldownMins, &a.State,
		&stateChangedAt, &lastTriggeredAt, &lastEvaluatedAt, &enabled,
		&createdAt, &updatedAt, &projectName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}

	a.PendingMins = intPtr(pendingMins)
	a.CooldownMins = intPtr(cooldownMins)
	a.StateChangedAt = timePtr(stateChangedAt)
	a.LastTriggeredAt = timePtr(lastTriggeredAt)
	a.LastEvaluatedAt = timePtr(lastEvaluatedAt)
	a.Enabled = enabled == 1
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	a.ChannelIDs = []string{}

	return &models.AlertWithProject{Alert: a, ProjectName: projectName}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
