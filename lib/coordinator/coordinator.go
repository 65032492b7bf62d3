// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordinator owns the live collaborative state of dashboards.
// One coordinator runs per dashboard as a single-writer actor: every
// connection open/close, inbound client message, and external push is
// processed strictly sequentially on one goroutine, so the item,
// session, and presence maps need no locking. Different dashboards'
// coordinators run independently.
//
// Durable state (items, sessions, the dashboard record) survives a
// restart through persisted snapshots; presence is derived purely from
// live connections and is deliberately empty after a cold start.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/slate-labs/slate/lib/clock"
	"github.com/slate-labs/slate/lib/schema"
)

// ErrStopped reports an operation on a coordinator that has shut down.
var ErrStopped = errors.New("coordinator: stopped")

// sendBuffer is each connection's outbound queue. A consumer that
// falls this far behind is closed rather than allowed to stall the
// dashboard or resume with a silent gap in its view.
const sendBuffer = 64

// persistTimeout bounds snapshot writes so a slow disk cannot wedge
// the event loop indefinitely.
const persistTimeout = 5 * time.Second

// Store is the persistence surface a coordinator needs.
type Store interface {
	Dashboard(ctx context.Context, id schema.DashboardID) (schema.Dashboard, error)
	ItemsForDashboard(ctx context.Context, id schema.DashboardID) ([]schema.DashboardItem, error)
	SessionsForDashboard(ctx context.Context, id schema.DashboardID) ([]schema.Session, error)
	Snapshot(ctx context.Context, id schema.DashboardID) ([]byte, error)
	SaveSnapshot(ctx context.Context, id schema.DashboardID, payload []byte, at time.Time) error
}

// Connection is one live streaming client. Events arrive on Events
// until the connection is disconnected or the coordinator stops, at
// which point the channel is closed.
type Connection struct {
	id       uint64
	userID   schema.UserID
	userName string
	events   chan schema.Event
}

// Events is the stream of frames for this connection.
func (c *Connection) Events() <-chan schema.Event { return c.events }

// UserID returns the authenticated user behind the connection.
func (c *Connection) UserID() schema.UserID { return c.userID }

// State is the full current view of a dashboard, used to hydrate a
// freshly opened client before streaming begins.
type State struct {
	Dashboard schema.Dashboard       `json:"dashboard" cbor:"1,keyasint"`
	Items     []schema.DashboardItem `json:"items" cbor:"2,keyasint"`
	Sessions  []schema.Session       `json:"sessions" cbor:"3,keyasint"`
	Presence  []schema.PresenceInfo  `json:"presence" cbor:"4,keyasint"`
}

// Config holds configuration for creating a Coordinator.
type Config struct {
	// DashboardID names the dashboard this coordinator owns. Required.
	DashboardID schema.DashboardID

	// Store persists snapshots and backs cold-start hydration.
	// Required.
	Store Store

	// Clock supplies timestamps. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives drop and persistence diagnostics. Nil means
	// silent.
	Logger *slog.Logger
}

type command func()

// Coordinator is the single-writer actor for one dashboard.
type Coordinator struct {
	dashboardID schema.DashboardID
	store       Store
	clock       clock.Clock
	logger      *slog.Logger

	inbox  chan command
	done   chan struct{}
	nextID atomic.Uint64

	// Maintained by the run loop, read by the registry's idle sweep.
	connCount  atomic.Int64
	lastActive atomic.Int64

	// Actor-owned state. Touched only from the run goroutine.
	dashboard   schema.Dashboard
	items       map[schema.ItemID]schema.DashboardItem
	sessions    map[schema.SessionID]schema.Session
	presence    map[schema.UserID]*schema.PresenceInfo
	connections map[uint64]*Connection
	connCounts  map[schema.UserID]int
}

// New creates a coordinator and hydrates its durable state: from the
// last persisted snapshot when one exists, from the relational store
// otherwise. Presence always starts empty. The caller must run Serve.
func New(ctx context.Context, config Config) (*Coordinator, error) {
	if config.DashboardID == "" {
		panic("coordinator: Config.DashboardID is required")
	}
	if config.Store == nil {
		panic("coordinator: Config.Store is required")
	}
	c := config.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	coordinator := &Coordinator{
		dashboardID: config.DashboardID,
		store:       config.Store,
		clock:       c,
		logger:      logger.With("dashboard_id", config.DashboardID),
		inbox:       make(chan command, 256),
		done:        make(chan struct{}),
		items:       make(map[schema.ItemID]schema.DashboardItem),
		sessions:    make(map[schema.SessionID]schema.Session),
		presence:    make(map[schema.UserID]*schema.PresenceInfo),
		connections: make(map[uint64]*Connection),
		connCounts:  make(map[schema.UserID]int),
	}
	coordinator.lastActive.Store(c.Now().UnixNano())
	if err := coordinator.hydrate(ctx); err != nil {
		return nil, err
	}
	return coordinator, nil
}

// hydrate loads durable state before the event loop starts, so no
// synchronization is needed.
func (c *Coordinator) hydrate(ctx context.Context) error {
	payload, err := c.store.Snapshot(ctx, c.dashboardID)
	if err == nil {
		state, decodeErr := decodeSnapshot(payload)
		if decodeErr == nil {
			c.dashboard = state.Dashboard
			for _, item := range state.Items {
				c.items[item.ID] = item
			}
			for _, session := range state.Sessions {
				c.sessions[session.ID] = session
			}
			return nil
		}
		c.logger.Warn("discarding unreadable snapshot", "error", decodeErr)
	}

	dashboard, err := c.store.Dashboard(ctx, c.dashboardID)
	if err != nil {
		return fmt.Errorf("hydrating dashboard %s: %w", c.dashboardID, err)
	}
	items, err := c.store.ItemsForDashboard(ctx, c.dashboardID)
	if err != nil {
		return fmt.Errorf("hydrating items for %s: %w", c.dashboardID, err)
	}
	sessions, err := c.store.SessionsForDashboard(ctx, c.dashboardID)
	if err != nil {
		return fmt.Errorf("hydrating sessions for %s: %w", c.dashboardID, err)
	}

	c.dashboard = dashboard
	for _, item := range items {
		c.items[item.ID] = item
	}
	for _, session := range sessions {
		c.sessions[session.ID] = session
	}
	return nil
}

// Serve runs the event loop until the context is canceled, then closes
// every live connection's event channel.
func (c *Coordinator) Serve(ctx context.Context) error {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			for id, connection := range c.connections {
				close(connection.events)
				delete(c.connections, id)
			}
			return ctx.Err()
		case cmd := <-c.inbox:
			cmd()
			c.lastActive.Store(c.clock.Now().UnixNano())
		}
	}
}

// submit posts a command to the actor and waits for it to be accepted.
func (c *Coordinator) submit(ctx context.Context, cmd command) error {
	executed := make(chan struct{})
	wrapped := func() {
		cmd()
		close(executed)
	}
	select {
	case c.inbox <- wrapped:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-executed:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect registers a streaming connection for a user. The user's
// first live connection adds a presence entry and broadcasts a join to
// everyone else; additional connections from the same user (more tabs)
// join silently. The new connection receives the full presence
// snapshot as its first frame.
func (c *Coordinator) Connect(ctx context.Context, userID schema.UserID, userName string) (*Connection, error) {
	connection := &Connection{
		id:       c.nextID.Add(1),
		userID:   userID,
		userName: userName,
		events:   make(chan schema.Event, sendBuffer),
	}
	err := c.submit(ctx, func() {
		c.connections[connection.id] = connection
		c.connCount.Store(int64(len(c.connections)))
		c.connCounts[userID]++
		if c.connCounts[userID] == 1 {
			c.presence[userID] = &schema.PresenceInfo{
				UserID:      userID,
				UserName:    userName,
				ConnectedAt: c.clock.Now().UTC(),
			}
			c.broadcast(schema.Event{
				Type:     schema.EventJoin,
				UserID:   userID,
				UserName: userName,
			}, connection.id)
		}
		c.deliver(connection, schema.Event{
			Type:     schema.EventPresence,
			Presence: c.presenceList(),
		})
	})
	if err != nil {
		return nil, err
	}
	return connection, nil
}

// Disconnect unregisters a connection. Presence for the user is torn
// down, and a leave broadcast sent, only when this was their last live
// connection.
func (c *Coordinator) Disconnect(ctx context.Context, connection *Connection) error {
	return c.submit(ctx, func() {
		c.dropConnection(connection)
	})
}

// dropConnection unregisters a connection and tears down presence if
// it was the user's last one. No-op if already unregistered. Run-loop
// only.
func (c *Coordinator) dropConnection(connection *Connection) {
	if _, ok := c.connections[connection.id]; !ok {
		return
	}
	delete(c.connections, connection.id)
	c.connCount.Store(int64(len(c.connections)))
	close(connection.events)

	c.connCounts[connection.userID]--
	if c.connCounts[connection.userID] > 0 {
		return
	}
	delete(c.connCounts, connection.userID)
	delete(c.presence, connection.userID)
	c.broadcast(schema.Event{
		Type:     schema.EventLeave,
		UserID:   connection.userID,
		UserName: connection.userName,
	}, connection.id)
}

// HandleMessage processes one inbound client frame: cursor and select
// update the sender's presence and are relayed to every other
// connection. Unknown message types are dropped.
func (c *Coordinator) HandleMessage(ctx context.Context, connection *Connection, message schema.ClientMessage) error {
	return c.submit(ctx, func() {
		info, ok := c.presence[connection.userID]
		if !ok {
			return
		}
		switch message.Type {
		case schema.EventCursor:
			if message.Cursor == nil {
				return
			}
			info.Cursor = message.Cursor
			c.broadcast(schema.Event{
				Type:     schema.EventCursor,
				UserID:   connection.userID,
				UserName: connection.userName,
				Cursor:   message.Cursor,
			}, connection.id)
		case schema.EventSelect:
			info.SelectedItemID = message.ItemID
			c.broadcast(schema.Event{
				Type:     schema.EventSelect,
				UserID:   connection.userID,
				UserName: connection.userName,
				ItemID:   message.ItemID,
			}, connection.id)
		default:
			c.logger.Debug("dropping unknown client message", "type", message.Type)
		}
	})
}

// PushItem applies an item create or update from the REST layer:
// mutate the map, persist a snapshot, broadcast to every connection.
func (c *Coordinator) PushItem(ctx context.Context, eventType schema.EventType, item schema.DashboardItem) error {
	return c.submit(ctx, func() {
		c.items[item.ID] = item
		c.persistSnapshot()
		c.broadcast(schema.Event{Type: eventType, Item: &item}, 0)
	})
}

// PushItemDelete applies an item deletion.
func (c *Coordinator) PushItemDelete(ctx context.Context, itemID schema.ItemID) error {
	return c.submit(ctx, func() {
		delete(c.items, itemID)
		c.persistSnapshot()
		c.broadcast(schema.Event{Type: schema.EventItemDelete, ItemID: itemID}, 0)
	})
}

// PushSession applies a session status change from the session bridge.
func (c *Coordinator) PushSession(ctx context.Context, session schema.Session) error {
	return c.submit(ctx, func() {
		c.sessions[session.ID] = session
		c.persistSnapshot()
		c.broadcast(schema.Event{Type: schema.EventSessionUpdate, Session: &session}, 0)
	})
}

// PushDashboard applies a dashboard rename or similar metadata change.
func (c *Coordinator) PushDashboard(ctx context.Context, dashboard schema.Dashboard) error {
	return c.submit(ctx, func() {
		c.dashboard = dashboard
		c.persistSnapshot()
	})
}

// State returns the full current dashboard view.
func (c *Coordinator) State(ctx context.Context) (State, error) {
	var state State
	err := c.submit(ctx, func() {
		state = State{
			Dashboard: c.dashboard,
			Items:     make([]schema.DashboardItem, 0, len(c.items)),
			Sessions:  make([]schema.Session, 0, len(c.sessions)),
			Presence:  c.presenceList(),
		}
		for _, item := range c.items {
			state.Items = append(state.Items, item)
		}
		for _, session := range c.sessions {
			state.Sessions = append(state.Sessions, session)
		}
	})
	return state, err
}

// Idle reports whether the coordinator has no live connections and
// has processed nothing since cutoff. Safe from any goroutine; the
// registry's eviction sweep uses it.
func (c *Coordinator) Idle(cutoff time.Time) bool {
	return c.connCount.Load() == 0 && time.Unix(0, c.lastActive.Load()).Before(cutoff)
}

// broadcast queues an event on every connection except the excluded
// one (0 excludes nobody). Run-loop only.
func (c *Coordinator) broadcast(event schema.Event, exclude uint64) {
	for id, connection := range c.connections {
		if id == exclude {
			continue
		}
		c.deliver(connection, event)
	}
}

// deliver queues an event without blocking the loop. A connection
// whose buffer is full cannot be allowed to keep streaming with a
// hole in its view, so it is closed instead; the client reconnects
// and rehydrates from State. Run-loop only.
func (c *Coordinator) deliver(connection *Connection, event schema.Event) {
	select {
	case connection.events <- event:
	default:
		c.logger.Warn("closing slow connection",
			"user_id", connection.userID,
			"event_type", event.Type,
		)
		c.dropConnection(connection)
	}
}

// persistSnapshot writes the durable portion of the state. Presence is
// intentionally absent from snapshots. Run-loop only.
func (c *Coordinator) persistSnapshot() {
	state := State{
		Dashboard: c.dashboard,
		Items:     make([]schema.DashboardItem, 0, len(c.items)),
		Sessions:  make([]schema.Session, 0, len(c.sessions)),
	}
	for _, item := range c.items {
		state.Items = append(state.Items, item)
	}
	for _, session := range c.sessions {
		state.Sessions = append(state.Sessions, session)
	}

	payload, err := encodeSnapshot(state)
	if err != nil {
		c.logger.Error("encoding snapshot", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.store.SaveSnapshot(ctx, c.dashboardID, payload, c.clock.Now().UTC()); err != nil {
		c.logger.Error("persisting snapshot", "error", err)
	}
}

// presenceList copies current presence for handing outside the loop.
// Run-loop only.
func (c *Coordinator) presenceList() []schema.PresenceInfo {
	list := make([]schema.PresenceInfo, 0, len(c.presence))
	for _, info := range c.presence {
		list = append(list, *info)
	}
	return list
}
