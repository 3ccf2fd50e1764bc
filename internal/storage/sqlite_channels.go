package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

const channelColumns = `id, project_id, name, provider, config_json, enabled, created_at, updated_at`

type sqliteChannelRepo struct {
	db *sql.DB
}

// Upsert stores a channel. Callers validate the config through the
// provider's adapter first.
func (r *sqliteChannelRepo) Upsert(ctx context.Context, ch *models.NotificationChannel) error {
	if ch.ID == "" {
		ch.ID = uuid.New().String()
	}
	if len(ch.Config) == 0 {
		ch.Config = json.RawMessage("{}")
	}
	now := time.Now()
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = now
	}
	ch.UpdatedAt = now

	query := `
		INSERT INTO notification_channels (` + channelColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id, name = excluded.name,
			provider = excluded.provider, config_json = excluded.config_json,
			enabled = excluded.enabled, updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		ch.ID, ch.ProjectID, ch.Name, string(ch.Provider), string(ch.Config),
		boolToInt(ch.Enabled), ch.CreatedAt.UnixMilli(), ch.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}
	return nil
}

func (r *sqliteChannelRepo) GetByID(ctx context.Context, id string) (*models.NotificationChannel, error) {
	query := `SELECT ` + channelColumns + ` FROM notification_channels WHERE id = ?`
	ch, err := scanChannel(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("channel %s: %w", id, ErrNotFound)
	}
	return ch, err
}

// GetMany returns the enabled channels among ids, in the order of ids.
// Unknown or disabled ids are skipped.
func (r *sqliteChannelRepo) GetMany(ctx context.Context, ids []string) ([]*models.NotificationChannel, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `SELECT ` + channelColumns + ` FROM notification_channels
		WHERE enabled = 1 AND id IN (` + placeholders + `)`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*models.NotificationChannel, len(ids))
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		byID[ch.ID] = ch
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}

	out := make([]*models.NotificationChannel, 0, len(byID))
	for _, id := range ids {
		if ch, ok := byID[id]; ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (r *sqliteChannelRepo) ListByProject(ctx context.Context, projectID string) ([]*models.NotificationChannel, error) {
	query := `SELECT ` + channelColumns + ` FROM notification_channels WHERE project_id = ? ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("query channels by project: %w", err)
	}
	defer rows.Close()

	var channels []*models.NotificationChannel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func scanChannel(row rowScanner) (*models.NotificationChannel, error) {
	ch := &models.NotificationChannel{}
	var config string
	var enabled int
	var createdAt, updatedAt int64
	err := row.Scan(&ch.ID, &ch.ProjectID, &ch.Name, &ch.Provider, &config, &enabled, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	ch.Config = json.RawMessage(config)
	ch.Enabled = enabled == 1
	ch.CreatedAt = fromMillis(createdAt)
	ch.UpdatedAt = fromMillis(updatedAt)
	return ch, nil
}
