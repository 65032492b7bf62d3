// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the Slate control-plane data model: dashboards
// and their items, terminal sessions, recipes and their executions,
// schedules, presence, and the coordinator event types broadcast to
// connected clients.
//
// Types here are pure data with validation methods. Persistence lives
// in lib/store; behavior lives in the owning components (coordinator,
// sessionbridge, lib/recipe, lib/scheduler).
package schema
