// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

// Session is a remote execution environment created on the sandbox
// service. All identifiers are owned by the remote side.
type Session struct {
	ID        string `json:"id"`
	Region    string `json:"region,omitempty"`
	Status    string `json:"status,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// CreateSessionRequest configures a new remote session.
type CreateSessionRequest struct {
	Region string `json:"region,omitempty"`

	// Labels are opaque key-value pairs attached to the session,
	// used by Slate to tag sessions with their dashboard and item.
	Labels map[string]string `json:"labels,omitempty"`
}

// Pty is an interactive terminal channel inside a session.
type Pty struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	OwnerID   string `json:"ownerId,omitempty"`
	Rows      int    `json:"rows,omitempty"`
	Cols      int    `json:"cols,omitempty"`
}

// CreatePtyRequest configures a new PTY.
type CreatePtyRequest struct {
	OwnerID string `json:"ownerId,omitempty"`
	Rows    int    `json:"rows,omitempty"`
	Cols    int    `json:"cols,omitempty"`
}

// FileInfo describes one entry in a session's filesystem.
type FileInfo struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	IsDir     bool   `json:"isDir"`
	Mode      string `json:"mode,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Agent is a long-running automated process inside a session.
type Agent struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Prompt    string `json:"prompt,omitempty"`
	StartedAt string `json:"startedAt,omitempty"`
}

// StartAgentRequest configures a new agent.
type StartAgentRequest struct {
	Prompt string         `json:"prompt"`
	Config map[string]any `json:"config,omitempty"`
}
