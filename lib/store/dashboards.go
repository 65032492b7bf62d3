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

// CreateDashboard inserts a dashboard and an owner membership for its
// creator in one transaction.
func (s *Store) CreateDashboard(ctx context.Context, dashboard schema.Dashboard) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: create dashboard: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("store: create dashboard: begin: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		`INSERT INTO dashboards (id, name, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				string(dashboard.ID),
				dashboard.Name,
				string(dashboard.OwnerID),
				unixMillis(dashboard.CreatedAt),
				unixMillis(dashboard.UpdatedAt),
			},
		})
	if err != nil {
		return fmt.Errorf("store: insert dashboard: %w", err)
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO memberships (dashboard_id, user_id, role) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{string(dashboard.ID), string(dashboard.OwnerID), string(schema.RoleOwner)},
		})
	if err != nil {
		return fmt.Errorf("store: insert owner membership: %w", err)
	}

	return nil
}

// Dashboard returns the dashboard with the given id, or ErrNotFound.
func (s *Store) Dashboard(ctx context.Context, id schema.DashboardID) (schema.Dashboard, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return schema.Dashboard{}, fmt.Errorf("store: dashboard: %w", err)
	}
	defer s.pool.Put(conn)

	var dashboard schema.Dashboard
	found := false
	err = sqlitex.Execute(conn,
		`SELECT id, name, owner_id, created_at, updated_at FROM dashboards WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(id)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				dashboard = scanDashboard(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return schema.Dashboard{}, fmt.Errorf("store: dashboard %s: %w", id, err)
	}
	if !found {
		return schema.Dashboard{}, fmt.Errorf("store: dashboard %s: %w", id, ErrNotFound)
	}
	return dashboard, nil
}

// DashboardsForUser returns all dashboards the user is a member of,
// ordered by most recently updated first.
func (s *Store) DashboardsForUser(ctx context.Context, userID schema.UserID) ([]schema.Dashboard, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: dashboards for user: %w", err)
	}
	defer s.pool.Put(conn)

	var dashboards []schema.Dashboard
	err = sqlitex.Execute(conn,
		`SELECT d.id, d.name, d.owner_id, d.created_at, d.updated_at
		 FROM dashboards d
		 JOIN memberships m ON m.dashboard_id = d.id
		 WHERE m.user_id = ?
		 ORDER BY d.updated_at DESC`,
		&sqlitex.ExecOptions{
			Args: []any{string(userID)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				dashboards = append(dashboards, scanDashboard(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: dashboards for user %s: %w", userID, err)
	}
	return dashboards, nil
}

// UpdateDashboard updates the name and updated_at of a dashboard.
// Returns ErrNotFound if the dashboard does not exist.
func (s *Store) UpdateDashboard(ctx context.Context, dashboard schema.Dashboard) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: update dashboard: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE dashboards SET name = ?, updated_at = ? WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{dashboard.Name, unixMillis(dashboard.UpdatedAt), string(dashboard.ID)},
		})
	if err != nil {
		return fmt.Errorf("store: update dashboard %s: %w", dashboard.ID, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("store: update dashboard %s: %w", dashboard.ID, ErrNotFound)
	}
	return nil
}

// TouchDashboard bumps a dashboard's updated_at, used when its items
// change. Missing dashboards are ignored.
func (s *Store) TouchDashboard(ctx context.Context, id schema.DashboardID, atMillis int64) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: touch dashboard: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE dashboards SET updated_at = ? WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{atMillis, string(id)}})
	if err != nil {
		return fmt.Errorf("store: touch dashboard %s: %w", id, err)
	}
	return nil
}

// DeleteDashboard removes a dashboard. Memberships, items, sessions,
// and the coordinator snapshot cascade. Returns ErrNotFound if the
// dashboard does not exist.
func (s *Store) DeleteDashboard(ctx context.Context, id schema.DashboardID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: delete dashboard: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM dashboards WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{string(id)}})
	if err != nil {
		return fmt.Errorf("store: delete dashboard %s: %w", id, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("store: delete dashboard %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetMembership inserts or updates a user's role on a dashboard.
func (s *Store) SetMembership(ctx context.Context, membership schema.Membership) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: set membership: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO memberships (dashboard_id, user_id, role) VALUES (?, ?, ?)
		 ON CONFLICT (dashboard_id, user_id) DO UPDATE SET role = excluded.role`,
		&sqlitex.ExecOptions{
			Args: []any{string(membership.DashboardID), string(membership.UserID), string(membership.Role)},
		})
	if err != nil {
		return fmt.Errorf("store: set membership %s/%s: %w", membership.DashboardID, membership.UserID, err)
	}
	return nil
}

// RemoveMembership deletes a user's membership. Idempotent.
func (s *Store) RemoveMembership(ctx context.Context, dashboardID schema.DashboardID, userID schema.UserID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: remove membership: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM memberships WHERE dashboard_id = ? AND user_id = ?`,
		&sqlitex.ExecOptions{Args: []any{string(dashboardID), string(userID)}})
	if err != nil {
		return fmt.Errorf("store: remove membership %s/%s: %w", dashboardID, userID, err)
	}
	return nil
}

// MembershipRole returns the user's role on a dashboard, or
// ErrNotFound if the user is not a member.
func (s *Store) MembershipRole(ctx context.Context, dashboardID schema.DashboardID, userID schema.UserID) (schema.Role, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", fmt.Errorf("store: membership role: %w", err)
	}
	defer s.pool.Put(conn)

	var role schema.Role
	found := false
	err = sqlitex.Execute(conn,
		`SELECT role FROM memberships WHERE dashboard_id = ? AND user_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(dashboardID), string(userID)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				role = schema.Role(stmt.ColumnText(0))
				found = true
				return nil
			},
		})
	if err != nil {
		return "", fmt.Errorf("store: membership role %s/%s: %w", dashboardID, userID, err)
	}
	if !found {
		return "", fmt.Errorf("store: membership %s/%s: %w", dashboardID, userID, ErrNotFound)
	}
	return role, nil
}

// Memberships returns all memberships for a dashboard.
func (s *Store) Memberships(ctx context.Context, dashboardID schema.DashboardID) ([]schema.Membership, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: memberships: %w", err)
	}
	defer s.pool.Put(conn)

	var memberships []schema.Membership
	err = sqlitex.Execute(conn,
		`SELECT dashboard_id, user_id, role FROM memberships WHERE dashboard_id = ? ORDER BY user_id`,
		&sqlitex.ExecOptions{
			Args: []any{string(dashboardID)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				memberships = append(memberships, schema.Membership{
					DashboardID: schema.DashboardID(stmt.ColumnText(0)),
					UserID:      schema.UserID(stmt.ColumnText(1)),
					Role:        schema.Role(stmt.ColumnText(2)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: memberships %s: %w", dashboardID, err)
	}
	return memberships, nil
}

func scanDashboard(stmt *sqlite.Stmt) schema.Dashboard {
	return schema.Dashboard{
		ID:        schema.DashboardID(stmt.ColumnText(0)),
		Name:      stmt.ColumnText(1),
		OwnerID:   schema.UserID(stmt.ColumnText(2)),
		CreatedAt: millisTime(stmt.ColumnInt64(3)),
		UpdatedAt: millisTime(stmt.ColumnInt64(4)),
	}
}
