// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/slate-labs/slate/lib/clock"
)

// defaultInterval is the tick period when none is configured.
const defaultInterval = 30 * time.Second

// RunnerConfig holds configuration for creating a Runner.
type RunnerConfig struct {
	// Scheduler processes due schedules on each tick. Required.
	Scheduler *Scheduler

	// Interval between ticks. Defaults to 30 seconds.
	Interval time.Duration

	// Clock drives the tick loop. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives tick failures. Nil means silent.
	Logger *slog.Logger
}

// Runner drives ProcessDue on a fixed interval. Exactly one runner
// should be active per database.
type Runner struct {
	scheduler *Scheduler
	interval  time.Duration
	clock     clock.Clock
	logger    *slog.Logger
}

// NewRunner creates a Runner. Panics if required configuration is
// missing.
func NewRunner(config RunnerConfig) *Runner {
	if config.Scheduler == nil {
		panic("scheduler: RunnerConfig.Scheduler is required")
	}
	interval := config.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	c := config.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		scheduler: config.Scheduler,
		interval:  interval,
		clock:     c,
		logger:    logger,
	}
}

// Run ticks until the context is canceled. A failed tick is logged and
// the loop continues; the next tick retries naturally.
func (r *Runner) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			started, err := r.scheduler.ProcessDue(ctx)
			if err != nil {
				r.logger.Error("processing due schedules", "error", err)
				continue
			}
			if len(started) > 0 {
				r.logger.Info("fired due schedules", "count", len(started))
			}
		}
	}
}
