// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/slate-labs/slate/lib/schema"
)

// CreateSession inserts a session row, typically in the "creating"
// state before the remote sandbox call is made.
func (s *Store) CreateSession(ctx context.Context, session schema.Session) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO sessions (id, dashboard_id, item_id, sandbox_session_id, pty_id, status, region, created_at, stopped_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				string(session.ID),
				string(session.DashboardID),
				string(session.ItemID),
				session.SandboxSessionID,
				session.PtyID,
				string(session.Status),
				session.Region,
				unixMillis(session.CreatedAt),
				nullableMillis(session.StoppedAt),
			},
		})
	if err != nil {
		return fmt.Errorf("store: insert session %s: %w", session.ID, err)
	}
	return nil
}

// Session returns the session with the given id, or ErrNotFound.
func (s *Store) Session(ctx context.Context, id schema.SessionID) (schema.Session, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return schema.Session{}, fmt.Errorf("store: session: %w", err)
	}
	defer s.pool.Put(conn)

	var session schema.Session
	found := false
	err = sqlitex.Execute(conn,
		sessionColumns+` WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(id)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				session = scanSession(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return schema.Session{}, fmt.Errorf("store: session %s: %w", id, err)
	}
	if !found {
		return schema.Session{}, fmt.Errorf("store: session %s: %w", id, ErrNotFound)
	}
	return session, nil
}

// UpdateSession rewrites the mutable fields of a session row: status,
// remote handles, and stop time. Returns ErrNotFound if the session
// does not exist.
func (s *Store) UpdateSession(ctx context.Context, session schema.Session) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: update session: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE sessions SET sandbox_session_id = ?, pty_id = ?, status = ?, stopped_at = ?
		 WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{
				session.SandboxSessionID,
				session.PtyID,
				string(session.Status),
				nullableMillis(session.StoppedAt),
				string(session.ID),
			},
		})
	if err != nil {
		return fmt.Errorf("store: update session %s: %w", session.ID, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("store: update session %s: %w", session.ID, ErrNotFound)
	}
	return nil
}

// LiveSessionForItem returns the session in a live state (creating or
// active) bound to the given item, or ErrNotFound. At most one such
// session exists per item; if concurrent bugs ever produce more, the
// newest wins.
func (s *Store) LiveSessionForItem(ctx context.Context, dashboardID schema.DashboardID, itemID schema.ItemID) (schema.Session, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return schema.Session{}, fmt.Errorf("store: live session for item: %w", err)
	}
	defer s.pool.Put(conn)

	var session schema.Session
	found := false
	err = sqlitex.Execute(conn,
		sessionColumns+` WHERE dashboard_id = ? AND item_id = ? AND status IN (?, ?)
		 ORDER BY created_at DESC LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{
				string(dashboardID),
				string(itemID),
				string(schema.SessionCreating),
				string(schema.SessionActive),
			},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				session = scanSession(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return schema.Session{}, fmt.Errorf("store: live session for item %s: %w", itemID, err)
	}
	if !found {
		return schema.Session{}, fmt.Errorf("store: live session for item %s: %w", itemID, ErrNotFound)
	}
	return session, nil
}

// SessionsForDashboard returns all sessions on a dashboard, newest
// first.
func (s *Store) SessionsForDashboard(ctx context.Context, dashboardID schema.DashboardID) ([]schema.Session, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: sessions for dashboard: %w", err)
	}
	defer s.pool.Put(conn)

	var sessions []schema.Session
	err = sqlitex.Execute(conn,
		sessionColumns+` WHERE dashboard_id = ? ORDER BY created_at DESC`,
		&sqlitex.ExecOptions{
			Args: []any{string(dashboardID)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				sessions = append(sessions, scanSession(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: sessions for dashboard %s: %w", dashboardID, err)
	}
	return sessions, nil
}

const sessionColumns = `SELECT id, dashboard_id, item_id, sandbox_session_id, pty_id, status, region, created_at, stopped_at FROM sessions`

func scanSession(stmt *sqlite.Stmt) schema.Session {
	return schema.Session{
		ID:               schema.SessionID(stmt.ColumnText(0)),
		DashboardID:      schema.DashboardID(stmt.ColumnText(1)),
		ItemID:           schema.ItemID(stmt.ColumnText(2)),
		SandboxSessionID: stmt.ColumnText(3),
		PtyID:            stmt.ColumnText(4),
		Status:           schema.SessionStatus(stmt.ColumnText(5)),
		Region:           stmt.ColumnText(6),
		CreatedAt:        millisTime(stmt.ColumnInt64(7)),
		StoppedAt:        columnTimePtr(stmt, 8),
	}
}
