package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      []string
}

// migrations holds all database migrations in order.
// Timestamps are stored as unix milliseconds.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL,
				name TEXT NOT NULL,
				metric_type TEXT NOT NULL,
				threshold REAL NOT NULL,
				operator TEXT NOT NULL,
				window_mins INTEGER NOT NULL,
				severity TEXT NOT NULL,
				pending_mins INTEGER,
				cooldown_mins INTEGER,
				state TEXT NOT NULL DEFAULT 'INACTIVE',
				state_changed_at INTEGER,
				last_triggered_at INTEGER,
				last_evaluated_at INTEGER,
				enabled INTEGER NOT NULL DEFAULT 1,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS notification_channels (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL,
				name TEXT NOT NULL,
				provider TEXT NOT NULL,
				config_json TEXT NOT NULL,
				enabled INTEGER NOT NULL DEFAULT 1,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS alert_channels (
				alert_id TEXT NOT NULL,
				channel_id TEXT NOT NULL,
				position INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (alert_id, channel_id),
				FOREIGN KEY (alert_id) REFERENCES alerts(id) ON DELETE CASCADE,
				FOREIGN KEY (channel_id) REFERENCES notification_channels(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS alert_history (
				id TEXT PRIMARY KEY,
				alert_id TEXT NOT NULL,
				project_id TEXT,
				value REAL NOT NULL,
				threshold REAL NOT NULL,
				state TEXT NOT NULL,
				previous_state TEXT NOT NULL,
				resolved INTEGER NOT NULL DEFAULT 0,
				resolved_at INTEGER,
				notified_via_json TEXT NOT NULL,
				sample_count INTEGER,
				evaluation_ms INTEGER,
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_alerts_severity_enabled ON alerts(severity, enabled)`,
			`CREATE INDEX IF NOT EXISTS idx_alerts_project ON alerts(project_id)`,
			`CREATE INDEX IF NOT EXISTS idx_channels_project ON notification_channels(project_id)`,
			`CREATE INDEX IF NOT EXISTS idx_history_alert ON alert_history(alert_id, created_at)`,
		},
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		for _, stmt := range m.Up {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
			}
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now().UnixMilli(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
