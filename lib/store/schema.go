// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package store

// schemaSQL is applied to every pooled connection. All statements are
// idempotent; schema evolution is additive.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS dashboards (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		owner_id   TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dashboards_owner ON dashboards(owner_id);

	CREATE TABLE IF NOT EXISTS memberships (
		dashboard_id TEXT NOT NULL REFERENCES dashboards(id) ON DELETE CASCADE,
		user_id      TEXT NOT NULL,
		role         TEXT NOT NULL,
		PRIMARY KEY (dashboard_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships(user_id);

	CREATE TABLE IF NOT EXISTS items (
		id           TEXT PRIMARY KEY,
		dashboard_id TEXT NOT NULL REFERENCES dashboards(id) ON DELETE CASCADE,
		type         TEXT NOT NULL,
		content      TEXT NOT NULL DEFAULT '',
		pos_x        REAL NOT NULL DEFAULT 0,
		pos_y        REAL NOT NULL DEFAULT 0,
		width        REAL NOT NULL DEFAULT 0,
		height       REAL NOT NULL DEFAULT 0,
		metadata     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_items_dashboard ON items(dashboard_id);

	CREATE TABLE IF NOT EXISTS sessions (
		id                 TEXT PRIMARY KEY,
		dashboard_id       TEXT NOT NULL REFERENCES dashboards(id) ON DELETE CASCADE,
		item_id            TEXT NOT NULL,
		sandbox_session_id TEXT NOT NULL DEFAULT '',
		pty_id             TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL,
		region             TEXT NOT NULL DEFAULT '',
		created_at         INTEGER NOT NULL,
		stopped_at         INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_item ON sessions(dashboard_id, item_id, status);

	CREATE TABLE IF NOT EXISTS recipes (
		id           TEXT PRIMARY KEY,
		dashboard_id TEXT NOT NULL DEFAULT '',
		name         TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		steps        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_recipes_dashboard ON recipes(dashboard_id);

	-- recipe_id carries no foreign key: executions and schedules
	-- outlive their recipe's deletion and stay reachable for cleanup.
	CREATE TABLE IF NOT EXISTS executions (
		id              TEXT PRIMARY KEY,
		recipe_id       TEXT NOT NULL,
		status          TEXT NOT NULL,
		current_step_id TEXT NOT NULL DEFAULT '',
		context         TEXT,
		triggered_by    TEXT NOT NULL,
		started_at      INTEGER NOT NULL,
		completed_at    INTEGER,
		error           TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_executions_recipe ON executions(recipe_id, started_at);

	CREATE TABLE IF NOT EXISTS artifacts (
		id           TEXT PRIMARY KEY,
		execution_id TEXT NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
		step_id      TEXT NOT NULL DEFAULT '',
		type         TEXT NOT NULL,
		name         TEXT NOT NULL,
		content      BLOB,
		content_hash TEXT NOT NULL,
		created_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_execution ON artifacts(execution_id, created_at);

	CREATE TABLE IF NOT EXISTS schedules (
		id            TEXT PRIMARY KEY,
		recipe_id     TEXT NOT NULL,
		name          TEXT NOT NULL,
		cron          TEXT NOT NULL DEFAULT '',
		event_trigger TEXT NOT NULL DEFAULT '',
		enabled       INTEGER NOT NULL DEFAULT 1,
		last_run_at   INTEGER,
		next_run_at   INTEGER,
		created_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules(enabled, next_run_at);
	CREATE INDEX IF NOT EXISTS idx_schedules_event ON schedules(enabled, event_trigger);

	CREATE TABLE IF NOT EXISTS snapshots (
		dashboard_id TEXT PRIMARY KEY REFERENCES dashboards(id) ON DELETE CASCADE,
		payload      BLOB NOT NULL,
		updated_at   INTEGER NOT NULL
	);
`
