// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// ItemType is the closed set of dashboard item kinds. The control
// plane treats most of them uniformly; terminal items are special —
// they are the only kind that can own a Session.
type ItemType string

const (
	ItemTypeNote     ItemType = "note"
	ItemTypeTodo     ItemType = "todo"
	ItemTypeTerminal ItemType = "terminal"
	ItemTypeLink     ItemType = "link"
	ItemTypeRecipe   ItemType = "recipe"
	ItemTypeImage    ItemType = "image"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeNote, ItemTypeTodo, ItemTypeTerminal, ItemTypeLink,
		ItemTypeRecipe, ItemTypeImage:
		return true
	}
	return false
}

// Position is an item's location on the dashboard canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is an item's rendered dimensions on the canvas.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DashboardItem is one interactive element on a dashboard. At most one
// Session with a live status may be bound to a terminal item at a time
// (enforced by the session bridge).
type DashboardItem struct {
	ID          ItemID         `json:"id"`
	DashboardID DashboardID    `json:"dashboardId"`
	Type        ItemType       `json:"type"`
	Content     string         `json:"content,omitempty"`
	Position    Position       `json:"position"`
	Size        Size           `json:"size"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Validate checks that the item is well-formed.
func (i DashboardItem) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("item: id is required")
	}
	if i.DashboardID == "" {
		return fmt.Errorf("item: dashboard id is required")
	}
	if !i.Type.Valid() {
		return fmt.Errorf("item: unknown type %q", i.Type)
	}
	return nil
}
