// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"time"
)

// Dashboard is a user-owned collaborative canvas containing items. The
// authoritative copy lives in the relational store; a running
// coordinator holds a cached mirror for broadcast.
type Dashboard struct {
	ID        DashboardID `json:"id"`
	Name      string      `json:"name"`
	OwnerID   UserID      `json:"ownerId"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Validate checks that the dashboard is well-formed.
func (d Dashboard) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("dashboard: id is required")
	}
	if d.Name == "" {
		return fmt.Errorf("dashboard: name is required")
	}
	if d.OwnerID == "" {
		return fmt.Errorf("dashboard: owner is required")
	}
	return nil
}

// Role is a user's membership role on a dashboard. Owners and editors
// may mutate items and sessions; viewers may only connect and observe.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// CanEdit reports whether the role permits item and session mutation.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// Membership binds a user to a dashboard with a role.
type Membership struct {
	DashboardID DashboardID `json:"dashboardId"`
	UserID      UserID      `json:"userId"`
	Role        Role        `json:"role"`
}
