// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"time"
)

// Schedule is a durable rule that starts recipe executions, either on
// a cron expression or when a named application event is emitted.
// Exactly one of Cron and EventTrigger is set.
//
// NextRunAt is maintained by the scheduler: it is non-nil only for
// enabled cron schedules with a parseable expression. Event schedules
// never have a next-run time.
type Schedule struct {
	ID           ScheduleID `json:"id"`
	RecipeID     RecipeID   `json:"recipeId"`
	Name         string     `json:"name"`
	Cron         string     `json:"cron,omitempty"`
	EventTrigger string     `json:"eventTrigger,omitempty"`
	Enabled      bool       `json:"enabled"`
	LastRunAt    *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt    *time.Time `json:"nextRunAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Validate checks the creation invariant: a recipe reference, a name,
// and exactly one trigger kind.
func (s Schedule) Validate() error {
	if s.RecipeID == "" {
		return fmt.Errorf("schedule: recipe id is required")
	}
	if s.Name == "" {
		return fmt.Errorf("schedule: name is required")
	}
	if s.Cron == "" && s.EventTrigger == "" {
		return fmt.Errorf("schedule: either cron or eventTrigger is required")
	}
	if s.Cron != "" && s.EventTrigger != "" {
		return fmt.Errorf("schedule: cron and eventTrigger are mutually exclusive")
	}
	return nil
}
