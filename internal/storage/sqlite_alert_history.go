package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

type sqliteAlertHistoryRepo struct {
	db *sql.DB
}

func (r *sqliteAlertHistoryRepo) Create(ctx context.Context, h *models.AlertHistoryEntry) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	if h.NotifiedVia == nil {
		h.NotifiedVia = []string{}
	}
	notifiedJSON, err := json.Marshal(h.NotifiedVia)
	if err != nil {
		return fmt.Errorf("marshal notified via: %w", err)
	}

	query := `
		INSERT INTO alert_history (id, alert_id, project_id, value, threshold, state,
			previous_state, resolved, resolved_at, notified_via_json, sample_count,
			evaluation_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		h.ID, h.AlertID, nullString(h.ProjectID), h.Value, h.Threshold, string(h.State),
		string(h.PreviousState), boolToInt(h.Resolved), nullMillis(h.ResolvedAt), string(notifiedJSON),
		h.SampleCount, h.EvaluationMs, h.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create alert history: %w", err)
	}
	return nil
}

func (r *sqliteAlertHistoryRepo) ListByAlert(ctx context.Context, alertID string, limit, offset int) ([]*models.AlertHistoryEntry, int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alert_history WHERE alert_id = ?", alertID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count alert history by alert: %w", err)
	}

	query := `
		SELECT id, alert_id, project_id, value, threshold, state, previous_state,
			resolved, resolved_at, notified_via_json, sample_count, evaluation_ms, created_at
		FROM alert_history WHERE alert_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, query, alertID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query alert history by alert: %w", err)
	}
	defer rows.Close()

	entries, err := r.scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, rows.Err()
}

func (r *sqliteAlertHistoryRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM alert_history WHERE created_at < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete alert history: %w", err)
	}
	return result.RowsAffected()
}

func (r *sqliteAlertHistoryRepo) scanEntries(rows *sql.Rows) ([]*models.AlertHistoryEntry, error) {
	var entries []*models.AlertHistoryEntry
	for rows.Next() {
		h := &models.AlertHistoryEntry{}
		var (
			projectID                 sql.NullString
			resolved                  int
			resolvedAt                sql.NullInt64
			notifiedJSON              string
			sampleCount, evaluationMs sql.NullInt64
			createdAt                 int64
		)
		err := rows.Scan(&h.ID, &h.AlertID, &projectID, &h.Value, &h.Threshold, &h.State,
			&h.PreviousState, &resolved, &resolvedAt, &notifiedJSON, &sampleCount,
			&evaluationMs, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan alert history: %w", err)
		}
		if err := json.Unmarshal([]byte(notifiedJSON), &h.NotifiedVia); err != nil {
			return nil, fmt.Errorf("unmarshal notified via: %w", err)
		}
		h.ProjectID = projectID.String
		h.Resolved = resolved == 1
		h.ResolvedAt = timePtr(resolvedAt)
		h.SampleCount = sampleCount.Int64
		h.EvaluationMs = evaluationMs.Int64
		h.CreatedAt = fromMillis(createdAt)
		entries = append(entries, h)
	}
	return entries, nil
}
