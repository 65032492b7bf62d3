// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/oklog/ulid/v2"

// Entity identifiers are ULIDs: lexicographically sortable by creation
// time, 26 characters, no coordination needed between processes. Each
// entity gets its own string type so that a SessionID cannot be passed
// where an ItemID is expected.

// DashboardID identifies a dashboard.
type DashboardID string

// ItemID identifies an item within a dashboard.
type ItemID string

// SessionID identifies a terminal session binding.
type SessionID string

// RecipeID identifies a recipe (workflow definition).
type RecipeID string

// ExecutionID identifies one run of a recipe.
type ExecutionID string

// ArtifactID identifies an artifact captured during an execution.
type ArtifactID string

// ScheduleID identifies a schedule.
type ScheduleID string

// UserID identifies a platform user. User records themselves live in
// the relational store owned by the account service; the control plane
// only carries the identifier and a display name.
type UserID string

// NewDashboardID returns a fresh dashboard identifier.
func NewDashboardID() DashboardID { return DashboardID(ulid.Make().String()) }

// NewItemID returns a fresh item identifier.
func NewItemID() ItemID { return ItemID(ulid.Make().String()) }

// NewSessionID returns a fresh session identifier.
func NewSessionID() SessionID { return SessionID(ulid.Make().String()) }

// NewRecipeID returns a fresh recipe identifier.
func NewRecipeID() RecipeID { return RecipeID(ulid.Make().String()) }

// NewExecutionID returns a fresh execution identifier.
func NewExecutionID() ExecutionID { return ExecutionID(ulid.Make().String()) }

// NewArtifactID returns a fresh artifact identifier.
func NewArtifactID() ArtifactID { return ArtifactID(ulid.Make().String()) }

// NewScheduleID returns a fresh schedule identifier.
func NewScheduleID() ScheduleID { return ScheduleID(ulid.Make().String()) }
