// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// Cursor is a user's pointer position on the dashboard canvas.
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PresenceInfo is a user's ephemeral collaboration state on one
// dashboard. It exists only while at least one live connection for
// that user is open; it is owned by the dashboard's coordinator and is
// never persisted — after a coordinator restart presence is correctly
// empty until clients reconnect.
type PresenceInfo struct {
	UserID         UserID    `json:"userId"`
	UserName       string    `json:"userName"`
	Cursor         *Cursor   `json:"cursor,omitempty"`
	SelectedItemID ItemID    `json:"selectedItemId,omitempty"`
	ConnectedAt    time.Time `json:"connectedAt"`
}
