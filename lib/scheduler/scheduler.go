// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler maintains the durable registry of schedules and
// turns them into recipe executions: cron schedules on a periodic
// tick, event schedules when the application emits a named event, and
// any schedule on manual trigger.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/slate-labs/slate/lib/clock"
	"github.com/slate-labs/slate/lib/cron"
	"github.com/slate-labs/slate/lib/schema"
)

// ErrInvalidSchedule reports a schedule that fails validation, such as
// a malformed cron expression or a missing trigger.
var ErrInvalidSchedule = errors.New("scheduler: invalid schedule")

// Store is the persistence surface the scheduler needs.
type Store interface {
	CreateSchedule(ctx context.Context, schedule schema.Schedule) error
	Schedule(ctx context.Context, id schema.ScheduleID) (schema.Schedule, error)
	Schedules(ctx context.Context) ([]schema.Schedule, error)
	UpdateSchedule(ctx context.Context, schedule schema.Schedule) error
	UpdateScheduleRunTimes(ctx context.Context, id schema.ScheduleID, lastRunAt, nextRunAt *time.Time) error
	DeleteSchedule(ctx context.Context, id schema.ScheduleID) error
	DueSchedules(ctx context.Context, now time.Time) ([]schema.Schedule, error)
	SchedulesForEvent(ctx context.Context, eventName string) ([]schema.Schedule, error)
}

// ExecutionStarter starts recipe executions. Satisfied by
// *recipe.Engine.
type ExecutionStarter interface {
	CreateExecution(ctx context.Context, recipeID schema.RecipeID, executionContext map[string]any, triggeredBy schema.TriggerKind) (schema.Execution, error)
}

// Config holds configuration for creating a Scheduler.
type Config struct {
	// Store persists schedules. Required.
	Store Store

	// Executions starts recipe executions for fired schedules.
	// Required.
	Executions ExecutionStarter

	// Clock supplies the current time. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives per-schedule failures during batch processing.
	// Nil means silent.
	Logger *slog.Logger
}

// Scheduler owns schedule lifecycle and firing.
type Scheduler struct {
	store      Store
	executions ExecutionStarter
	clock      clock.Clock
	logger     *slog.Logger
}

// New creates a Scheduler. Panics if required configuration is
// missing.
func New(config Config) *Scheduler {
	if config.Store == nil {
		panic("scheduler: Config.Store is required")
	}
	if config.Executions == nil {
		panic("scheduler: Config.Executions is required")
	}
	c := config.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		store:      config.Store,
		executions: config.Executions,
		clock:      c,
		logger:     logger,
	}
}

// Create validates and persists a new schedule. NextRunAt is computed
// for enabled cron schedules and null otherwise.
func (s *Scheduler) Create(ctx context.Context, schedule schema.Schedule) (schema.Schedule, error) {
	if schedule.ID == "" {
		schedule.ID = schema.NewScheduleID()
	}
	schedule.CreatedAt = s.clock.Now().UTC()
	schedule.LastRunAt = nil

	if err := s.normalize(&schedule); err != nil {
		return schema.Schedule{}, err
	}
	if err := s.store.CreateSchedule(ctx, schedule); err != nil {
		return schema.Schedule{}, err
	}
	return schedule, nil
}

// Update rewrites a schedule's definition, recomputing NextRunAt under
// the same rules as Create.
func (s *Scheduler) Update(ctx context.Context, schedule schema.Schedule) (schema.Schedule, error) {
	current, err := s.store.Schedule(ctx, schedule.ID)
	if err != nil {
		return schema.Schedule{}, err
	}
	schedule.CreatedAt = current.CreatedAt
	schedule.LastRunAt = current.LastRunAt

	if err := s.normalize(&schedule); err != nil {
		return schema.Schedule{}, err
	}
	if err := s.store.UpdateSchedule(ctx, schedule); err != nil {
		return schema.Schedule{}, err
	}
	return schedule, nil
}

// SetEnabled flips a schedule on or off. Disabling clears NextRunAt;
// enabling a cron schedule recomputes it.
func (s *Scheduler) SetEnabled(ctx context.Context, id schema.ScheduleID, enabled bool) (schema.Schedule, error) {
	schedule, err := s.store.Schedule(ctx, id)
	if err != nil {
		return schema.Schedule{}, err
	}
	schedule.Enabled = enabled
	if err := s.normalize(&schedule); err != nil {
		return schema.Schedule{}, err
	}
	if err := s.store.UpdateSchedule(ctx, schedule); err != nil {
		return schema.Schedule{}, err
	}
	return schedule, nil
}

// Delete removes a schedule.
func (s *Scheduler) Delete(ctx context.Context, id schema.ScheduleID) error {
	return s.store.DeleteSchedule(ctx, id)
}

// normalize validates the schedule and maintains the NextRunAt
// invariant: set only for enabled schedules with a parseable cron
// expression, null in every other case.
func (s *Scheduler) normalize(schedule *schema.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}

	schedule.NextRunAt = nil
	if schedule.Cron == "" {
		return nil
	}

	expression, err := cron.Parse(schedule.Cron)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	if !schedule.Enabled {
		return nil
	}

	next, err := expression.Next(s.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	schedule.NextRunAt = &next
	return nil
}

// Trigger fires a schedule by hand, regardless of whether it is
// enabled, and returns the started execution.
func (s *Scheduler) Trigger(ctx context.Context, id schema.ScheduleID) (schema.Execution, error) {
	schedule, err := s.store.Schedule(ctx, id)
	if err != nil {
		return schema.Execution{}, err
	}
	return s.fire(ctx, schedule, schema.TriggerManual)
}

// ProcessDue fires every enabled cron schedule whose next-run time has
// arrived. Failure to fire one schedule is logged and does not stop
// the rest of the batch. Returns the executions that were started.
func (s *Scheduler) ProcessDue(ctx context.Context) ([]schema.Execution, error) {
	now := s.clock.Now().UTC()
	due, err := s.store.DueSchedules(ctx, now)
	if err != nil {
		return nil, err
	}

	var started []schema.Execution
	for _, schedule := range due {
		execution, err := s.fire(ctx, schedule, schema.TriggerCron)
		if err != nil {
			s.logger.Error("firing due schedule",
				"schedule_id", schedule.ID,
				"recipe_id", schedule.RecipeID,
				"error", err,
			)
			continue
		}
		started = append(started, execution)
	}
	return started, nil
}

// EmitEvent fires every enabled schedule listening for the named
// event. Per-schedule failures are logged and skipped. Returns the
// executions that were started; the count of fired schedules is the
// length of that slice.
func (s *Scheduler) EmitEvent(ctx context.Context, name string, payload map[string]any) ([]schema.Execution, error) {
	listeners, err := s.store.SchedulesForEvent(ctx, name)
	if err != nil {
		return nil, err
	}

	var started []schema.Execution
	for _, schedule := range listeners {
		executionContext := map[string]any{"event": name}
		if payload != nil {
			executionContext["payload"] = payload
		}
		execution, err := s.executions.CreateExecution(ctx, schedule.RecipeID, executionContext, schema.TriggerEvent)
		if err != nil {
			s.logger.Error("firing event schedule",
				"schedule_id", schedule.ID,
				"event", name,
				"error", err,
			)
			continue
		}
		now := s.clock.Now().UTC()
		if err := s.store.UpdateScheduleRunTimes(ctx, schedule.ID, &now, nil); err != nil {
			s.logger.Error("updating event schedule run time",
				"schedule_id", schedule.ID,
				"error", err,
			)
		}
		started = append(started, execution)
	}
	return started, nil
}

// fire starts an execution for one schedule and stamps its run times:
// lastRunAt moves to now; nextRunAt is recomputed only for enabled
// cron schedules.
func (s *Scheduler) fire(ctx context.Context, schedule schema.Schedule, triggeredBy schema.TriggerKind) (schema.Execution, error) {
	execution, err := s.executions.CreateExecution(ctx, schedule.RecipeID, nil, triggeredBy)
	if err != nil {
		return schema.Execution{}, fmt.Errorf("starting execution for schedule %s: %w", schedule.ID, err)
	}

	now := s.clock.Now().UTC()
	var nextRunAt *time.Time
	if schedule.Enabled && schedule.Cron != "" {
		if expression, err := cron.Parse(schedule.Cron); err == nil {
			if next, err := expression.Next(now); err == nil {
				nextRunAt = &next
			}
		}
	}
	if err := s.store.UpdateScheduleRunTimes(ctx, schedule.ID, &now, nextRunAt); err != nil {
		return execution, fmt.Errorf("updating run times for schedule %s: %w", schedule.ID, err)
	}
	return execution, nil
}
