// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the durable relational store for the Slate control
// plane: dashboards, memberships, items, sessions, recipes,
// executions, artifacts, schedules, and coordinator snapshots. It is
// backed by SQLite via lib/sqlitepool and writes SQL directly — no ORM
// layer.
//
// All timestamps are stored as Unix milliseconds UTC. JSON columns
// (item metadata, recipe steps, execution context) use encoding/json;
// the coordinator snapshot payload is an opaque blob owned by the
// caller.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/slate-labs/slate/lib/sqlitepool"
)

// ErrNotFound is returned by lookup methods when no row matches.
// Callers distinguish it from operational errors with errors.Is.
var ErrNotFound = errors.New("store: not found")

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// Required.
	Path string

	// PoolSize is the connection pool size. Defaults to 4.
	PoolSize int

	// Logger receives operational messages. Nil means silent.
	Logger *slog.Logger
}

// Store provides durable storage for all control-plane entities. Safe
// for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open creates the store, applying the schema on each pooled
// connection. The caller must Close the store when done.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schemaSQL, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	return &Store{pool: pool, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// unixMillis converts a time to the stored integer representation.
func unixMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// millisTime converts a stored integer back to a UTC time.
func millisTime(millis int64) time.Time {
	return time.UnixMilli(millis).UTC()
}

// nullableMillis converts an optional time to a SQL argument: nil for
// absent, Unix milliseconds otherwise.
func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return unixMillis(*t)
}

// columnTimePtr reads a nullable millisecond column into a *time.Time.
func columnTimePtr(stmt *sqlite.Stmt, column int) *time.Time {
	if stmt.ColumnIsNull(column) {
		return nil
	}
	t := millisTime(stmt.ColumnInt64(column))
	return &t
}

// jsonText marshals a value to a TEXT column argument. Nil-ish values
// (empty maps, nil slices) store as NULL so the scan side can skip the
// unmarshal.
func jsonText(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		if len(v) == 0 {
			return nil, nil
		}
	case nil:
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("store: marshal json column: %w", err)
	}
	return string(data), nil
}

// columnJSON unmarshals a nullable TEXT column into target. A NULL
// column leaves target untouched.
func columnJSON(stmt *sqlite.Stmt, column int, target any) error {
	if stmt.ColumnIsNull(column) {
		return nil
	}
	if err := json.Unmarshal([]byte(stmt.ColumnText(column)), target); err != nil {
		return fmt.Errorf("store: unmarshal json column: %w", err)
	}
	return nil
}
