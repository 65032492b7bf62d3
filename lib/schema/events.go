// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// EventType discriminates the frames broadcast on a dashboard's
// streaming connection.
type EventType string

const (
	// EventJoin announces a user's first live connection.
	EventJoin EventType = "join"

	// EventLeave announces that a user's last connection closed.
	EventLeave EventType = "leave"

	// EventCursor relays a collaborator's cursor movement.
	EventCursor EventType = "cursor"

	// EventSelect relays a collaborator's item selection.
	EventSelect EventType = "select"

	// EventPresence delivers the full presence snapshot to a freshly
	// connected client.
	EventPresence EventType = "presence"

	// EventItemCreate, EventItemUpdate, and EventItemDelete announce
	// item mutations pushed from the REST layer.
	EventItemCreate EventType = "item_create"
	EventItemUpdate EventType = "item_update"
	EventItemDelete EventType = "item_delete"

	// EventSessionUpdate announces a session status change pushed from
	// the session bridge.
	EventSessionUpdate EventType = "session_update"
)

// Event is one frame on a dashboard streaming connection. Only the
// fields relevant to the Type are populated.
type Event struct {
	Type EventType `json:"type"`

	// Join, leave, cursor, and select carry the acting user.
	UserID   UserID `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`

	// Cursor events.
	Cursor *Cursor `json:"cursor,omitempty"`

	// Select events and item deletes.
	ItemID ItemID `json:"itemId,omitempty"`

	// Item create/update events.
	Item *DashboardItem `json:"item,omitempty"`

	// Session update events.
	Session *Session `json:"session,omitempty"`

	// Presence snapshot for a newly opened connection.
	Presence []PresenceInfo `json:"presence,omitempty"`
}

// ClientMessage is the small closed set of messages a client may send
// on a dashboard streaming connection.
type ClientMessage struct {
	Type   EventType `json:"type"`
	Cursor *Cursor   `json:"cursor,omitempty"`
	ItemID ItemID    `json:"itemId,omitempty"`
}
