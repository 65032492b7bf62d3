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

// CreateItem inserts a dashboard item.
func (s *Store) CreateItem(ctx context.Context, item schema.DashboardItem) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: create item: %w", err)
	}
	defer s.pool.Put(conn)

	metadata, err := jsonText(item.Metadata)
	if err != nil {
		return err
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO items (id, dashboard_id, type, content, pos_x, pos_y, width, height, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				string(item.ID),
				string(item.DashboardID),
				string(item.Type),
				item.Content,
				item.Position.X,
				item.Position.Y,
				item.Size.Width,
				item.Size.Height,
				metadata,
			},
		})
	if err != nil {
		return fmt.Errorf("store: insert item %s: %w", item.ID, err)
	}
	return nil
}

// Item returns the item with the given id, or ErrNotFound.
func (s *Store) Item(ctx context.Context, id schema.ItemID) (schema.DashboardItem, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return schema.DashboardItem{}, fmt.Errorf("store: item: %w", err)
	}
	defer s.pool.Put(conn)

	var item schema.DashboardItem
	found := false
	err = sqlitex.Execute(conn,
		itemColumns+` WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(id)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				scanned, err := scanItem(stmt)
				if err != nil {
					return err
				}
				item = scanned
				found = true
				return nil
			},
		})
	if err != nil {
		return schema.DashboardItem{}, fmt.Errorf("store: item %s: %w", id, err)
	}
	if !found {
		return schema.DashboardItem{}, fmt.Errorf("store: item %s: %w", id, ErrNotFound)
	}
	return item, nil
}

// ItemsForDashboard returns all items on a dashboard.
func (s *Store) ItemsForDashboard(ctx context.Context, dashboardID schema.DashboardID) ([]schema.DashboardItem, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: items for dashboard: %w", err)
	}
	defer s.pool.Put(conn)

	var items []schema.DashboardItem
	err = sqlitex.Execute(conn,
		itemColumns+` WHERE dashboard_id = ? ORDER BY id`,
		&sqlitex.ExecOptions{
			Args: []any{string(dashboardID)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				item, err := scanItem(stmt)
				if err != nil {
					return err
				}
				items = append(items, item)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: items for dashboard %s: %w", dashboardID, err)
	}
	return items, nil
}

// UpdateItem rewrites all mutable fields of an item. Returns
// ErrNotFound if the item does not exist.
func (s *Store) UpdateItem(ctx context.Context, item schema.DashboardItem) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: update item: %w", err)
	}
	defer s.pool.Put(conn)

	metadata, err := jsonText(item.Metadata)
	if err != nil {
		return err
	}

	err = sqlitex.Execute(conn,
		`UPDATE items SET content = ?, pos_x = ?, pos_y = ?, width = ?, height = ?, metadata = ?
		 WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{
				item.Content,
				item.Position.X,
				item.Position.Y,
				item.Size.Width,
				item.Size.Height,
				metadata,
				string(item.ID),
			},
		})
	if err != nil {
		return fmt.Errorf("store: update item %s: %w", item.ID, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("store: update item %s: %w", item.ID, ErrNotFound)
	}
	return nil
}

// DeleteItem removes an item. Returns ErrNotFound if it does not
// exist.
func (s *Store) DeleteItem(ctx context.Context, id schema.ItemID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: delete item: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM items WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{string(id)}})
	if err != nil {
		return fmt.Errorf("store: delete item %s: %w", id, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("store: delete item %s: %w", id, ErrNotFound)
	}
	return nil
}

const itemColumns = `SELECT id, dashboard_id, type, content, pos_x, pos_y, width, height, metadata FROM items`

func scanItem(stmt *sqlite.Stmt) (schema.DashboardItem, error) {
	item := schema.DashboardItem{
		ID:          schema.ItemID(stmt.ColumnText(0)),
		DashboardID: schema.DashboardID(stmt.ColumnText(1)),
		Type:        schema.ItemType(stmt.ColumnText(2)),
		Content:     stmt.ColumnText(3),
		Position:    schema.Position{X: stmt.ColumnFloat(4), Y: stmt.ColumnFloat(5)},
		Size:        schema.Size{Width: stmt.ColumnFloat(6), Height: stmt.ColumnFloat(7)},
	}
	if err := columnJSON(stmt, 8, &item.Metadata); err != nil {
		return item, err
	}
	return item, nil
}
