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

// CreateSchedule inserts a schedule row.
func (s *Store) CreateSchedule(ctx context.Context, schedule schema.Schedule) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: create schedule: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO schedules (id, recipe_id, name, cron, event_trigger, enabled, last_run_at, next_run_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				string(schedule.ID),
				string(schedule.RecipeID),
				schedule.Name,
				schedule.Cron,
				schedule.EventTrigger,
				boolInt(schedule.Enabled),
				nullableMillis(schedule.LastRunAt),
				nullableMillis(schedule.NextRunAt),
				unixMillis(schedule.CreatedAt),
			},
		})
	if err != nil {
		return fmt.Errorf("store: insert schedule %s: %w", schedule.ID, err)
	}
	return nil
}

// Schedule returns the schedule with the given id, or ErrNotFound.
func (s *Store) Schedule(ctx context.Context, id schema.ScheduleID) (schema.Schedule, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return schema.Schedule{}, fmt.Errorf("store: schedule: %w", err)
	}
	defer s.pool.Put(conn)

	var schedule schema.Schedule
	found := false
	err = sqlitex.Execute(conn,
		scheduleColumns+` WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(id)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				schedule = scanSchedule(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return schema.Schedule{}, fmt.Errorf("store: schedule %s: %w", id, err)
	}
	if !found {
		return schema.Schedule{}, fmt.Errorf("store: schedule %s: %w", id, ErrNotFound)
	}
	return schedule, nil
}

// Schedules returns all schedules ordered by creation time.
func (s *Store) Schedules(ctx context.Context) ([]schema.Schedule, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: schedules: %w", err)
	}
	defer s.pool.Put(conn)

	var schedules []schema.Schedule
	err = sqlitex.Execute(conn,
		scheduleColumns+` ORDER BY created_at, id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				schedules = append(schedules, scanSchedule(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: schedules: %w", err)
	}
	return schedules, nil
}

// UpdateSchedule rewrites all mutable fields of a schedule. Returns
// ErrNotFound if the schedule does not exist.
func (s *Store) UpdateSchedule(ctx context.Context, schedule schema.Schedule) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: update schedule: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE schedules SET name = ?, cron = ?, event_trigger = ?, enabled = ?, last_run_at = ?, next_run_at = ?
		 WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{
				schedule.Name,
				schedule.Cron,
				schedule.EventTrigger,
				boolInt(schedule.Enabled),
				nullableMillis(schedule.LastRunAt),
				nullableMillis(schedule.NextRunAt),
				string(schedule.ID),
			},
		})
	if err != nil {
		return fmt.Errorf("store: update schedule %s: %w", schedule.ID, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("store: update schedule %s: %w", schedule.ID, ErrNotFound)
	}
	return nil
}

// UpdateScheduleRunTimes sets last_run_at and next_run_at after a
// schedule fires or is recomputed. Returns ErrNotFound if the schedule
// does not exist.
func (s *Store) UpdateScheduleRunTimes(ctx context.Context, id schema.ScheduleID, lastRunAt, nextRunAt *time.Time) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: update schedule run times: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE schedules SET last_run_at = ?, next_run_at = ? WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{nullableMillis(lastRunAt), nullableMillis(nextRunAt), string(id)},
		})
	if err != nil {
		return fmt.Errorf("store: update schedule run times %s: %w", id, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("store: update schedule run times %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteSchedule removes a schedule. Returns ErrNotFound if it does
// not exist.
func (s *Store) DeleteSchedule(ctx context.Context, id schema.ScheduleID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: delete schedule: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM schedules WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{string(id)}})
	if err != nil {
		return fmt.Errorf("store: delete schedule %s: %w", id, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("store: delete schedule %s: %w", id, ErrNotFound)
	}
	return nil
}

// DueSchedules returns enabled cron schedules whose next run time is
// at or before now, ordered by next run time.
func (s *Store) DueSchedules(ctx context.Context, now time.Time) ([]schema.Schedule, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: due schedules: %w", err)
	}
	defer s.pool.Put(conn)

	var schedules []schema.Schedule
	err = sqlitex.Execute(conn,
		scheduleColumns+` WHERE enabled = 1 AND cron != '' AND next_run_at IS NOT NULL AND next_run_at <= ?
		 ORDER BY next_run_at`,
		&sqlitex.ExecOptions{
			Args: []any{unixMillis(now)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				schedules = append(schedules, scanSchedule(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: due schedules: %w", err)
	}
	return schedules, nil
}

// SchedulesForEvent returns enabled schedules triggered by the named
// application event.
func (s *Store) SchedulesForEvent(ctx context.Context, eventName string) ([]schema.Schedule, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: schedules for event: %w", err)
	}
	defer s.pool.Put(conn)

	var schedules []schema.Schedule
	err = sqlitex.Execute(conn,
		scheduleColumns+` WHERE enabled = 1 AND event_trigger = ? ORDER BY created_at, id`,
		&sqlitex.ExecOptions{
			Args: []any{eventName},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				schedules = append(schedules, scanSchedule(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: schedules for event %q: %w", eventName, err)
	}
	return schedules, nil
}

const scheduleColumns = `SELECT id, recipe_id, name, cron, event_trigger, enabled, last_run_at, next_run_at, created_at FROM schedules`

func scanSchedule(stmt *sqlite.Stmt) schema.Schedule {
	return schema.Schedule{
		ID:           schema.ScheduleID(stmt.ColumnText(0)),
		RecipeID:     schema.RecipeID(stmt.ColumnText(1)),
		Name:         stmt.ColumnText(2),
		Cron:         stmt.ColumnText(3),
		EventTrigger: stmt.ColumnText(4),
		Enabled:      stmt.ColumnInt(5) != 0,
		LastRunAt:    columnTimePtr(stmt, 6),
		NextRunAt:    columnTimePtr(stmt, 7),
		CreatedAt:    millisTime(stmt.ColumnInt64(8)),
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
