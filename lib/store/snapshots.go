// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/slate-labs/slate/lib/schema"
)

// SaveSnapshot upserts the coordinator snapshot blob for a dashboard.
// The payload format (compressed CBOR) is owned by the coordinator;
// the store treats it as opaque.
func (s *Store) SaveSnapshot(ctx context.Context, dashboardID schema.DashboardID, payload []byte, at time.Time) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: save snapshot: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO snapshots (dashboard_id, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (dashboard_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{string(dashboardID), payload, unixMillis(at)},
		})
	if err != nil {
		return fmt.Errorf("store: save snapshot %s: %w", dashboardID, err)
	}
	return nil
}

// Snapshot returns the snapshot blob for a dashboard, or ErrNotFound.
func (s *Store) Snapshot(ctx context.Context, dashboardID schema.DashboardID) ([]byte, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: snapshot: %w", err)
	}
	defer s.pool.Put(conn)

	var payload []byte
	found := false
	err = sqlitex.Execute(conn,
		`SELECT payload FROM snapshots WHERE dashboard_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(dashboardID)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				payload = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, payload)
				found = true
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: snapshot %s: %w", dashboardID, err)
	}
	if !found {
		return nil, fmt.Errorf("store: snapshot %s: %w", dashboardID, ErrNotFound)
	}
	return payload, nil
}
