// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// SessionStatus is the session lifecycle state machine:
//
//	creating → active → stopped
//	creating → error
//
// "stopped" and "error" are terminal. The invariant maintained by the
// session bridge is that at most one session with a live status
// (creating or active) exists per (dashboard, item) pair.
type SessionStatus string

const (
	SessionCreating SessionStatus = "creating"
	SessionActive   SessionStatus = "active"
	SessionStopped  SessionStatus = "stopped"
	SessionError    SessionStatus = "error"
)

// Live reports whether the status counts against the one-session-per-
// item invariant.
func (s SessionStatus) Live() bool {
	return s == SessionCreating || s == SessionActive
}

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionStopped || s == SessionError
}

// CanTransition reports whether the state machine permits moving from
// s to next.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case SessionCreating:
		return next == SessionActive || next == SessionError || next == SessionStopped
	case SessionActive:
		return next == SessionStopped
	}
	return false
}

// Session binds a dashboard terminal item to a live session and PTY in
// the external sandbox service. SandboxSessionID and PtyID are empty
// while the session is still being created remotely (the two-phase
// creation saga) and after creation fails.
type Session struct {
	ID               SessionID     `json:"id"`
	DashboardID      DashboardID   `json:"dashboardId"`
	ItemID           ItemID        `json:"itemId"`
	SandboxSessionID string        `json:"sandboxSessionId,omitempty"`
	PtyID            string        `json:"ptyId,omitempty"`
	Status           SessionStatus `json:"status"`
	Region           string        `json:"region,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	StoppedAt        *time.Time    `json:"stoppedAt,omitempty"`
}
