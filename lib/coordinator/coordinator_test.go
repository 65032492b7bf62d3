// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/slate-labs/slate/lib/clock"
	"github.com/slate-labs/slate/lib/schema"
	"github.com/slate-labs/slate/lib/store"
	"github.com/slate-labs/slate/lib/testutil"
)

const waitTimeout = 5 * time.Second

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "coordinator-test.db")})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestDashboard(t *testing.T, s *store.Store) schema.Dashboard {
	t.Helper()
	dashboard := schema.Dashboard{
		ID:        schema.NewDashboardID(),
		Name:      "shared board",
		OwnerID:   "user-owner",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.CreateDashboard(context.Background(), dashboard); err != nil {
		t.Fatalf("creating dashboard: %v", err)
	}
	return dashboard
}

func startCoordinator(t *testing.T, s *store.Store, dashboardID schema.DashboardID) *Coordinator {
	t.Helper()
	c, err := New(context.Background(), Config{DashboardID: dashboardID, Store: s})
	if err != nil {
		t.Fatalf("creating coordinator: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, done, waitTimeout, "coordinator did not stop")
	})
	return c
}

// drainUntil receives events until one matches the wanted type,
// failing the test if it never arrives.
func drainUntil(t *testing.T, connection *Connection, want schema.EventType) schema.Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case event, ok := <-connection.Events():
			if !ok {
				t.Fatalf("connection closed while waiting for %s", want)
			}
			if event.Type == want {
				return event
			}
		case <-deadline:
			t.Fatalf("no %s event within %s", want, waitTimeout)
		}
	}
}

func TestFirstConnectionBroadcastsJoin(t *testing.T) {
	s := openTestStore(t)
	dashboard := createTestDashboard(t, s)
	c := startCoordinator(t, s, dashboard.ID)
	ctx := context.Background()

	alice, err := c.Connect(ctx, "user-alice", "Alice")
	if err != nil {
		t.Fatalf("connect alice: %v", err)
	}
	// The joiner's first frame is the presence snapshot, including
	// themself.
	presence := drainUntil(t, alice, schema.EventPresence)
	if len(presence.Presence) != 1 || presence.Presence[0].UserID != "user-alice" {
		t.Errorf("presence snapshot = %+v", presence.Presence)
	}

	bob, err := c.Connect(ctx, "user-bob", "Bob")
	if err != nil {
		t.Fatalf("connect bob: %v", err)
	}
	join := drainUntil(t, alice, schema.EventJoin)
	if join.UserID != "user-bob" || join.UserName != "Bob" {
		t.Errorf("join = %+v", join)
	}
	// Bob's snapshot carries both users.
	presence = drainUntil(t, bob, schema.EventPresence)
	if len(presence.Presence) != 2 {
		t.Errorf("bob presence snapshot has %d entries, want 2", len(presence.Presence))
	}
}

func TestMultiTabJoinLeaveOnce(t *testing.T) {
	s := openTestStore(t)
	dashboard := createTestDashboard(t, s)
	c := startCoordinator(t, s, dashboard.ID)
	ctx := context.Background()

	observer, err := c.Connect(ctx, "user-observer", "Observer")
	if err != nil {
		t.Fatalf("connect observer: %v", err)
	}
	drainUntil(t, observer, schema.EventPresence)

	// Three tabs from the same user yield exactly one join.
	var tabs []*Connection
	for range 3 {
		tab, err := c.Connect(ctx, "user-alice", "Alice")
		if err != nil {
			t.Fatalf("connect tab: %v", err)
		}
		tabs = append(tabs, tab)
	}
	join := drainUntil(t, observer, schema.EventJoin)
	if join.UserID != "user-alice" {
		t.Errorf("join = %+v", join)
	}
	testutil.RequireNoReceive(t, observer.Events(), 100*time.Millisecond,
		"later tabs must join silently")

	// Closing all but the last tab is silent.
	for _, tab := range tabs[:2] {
		if err := c.Disconnect(ctx, tab); err != nil {
			t.Fatalf("disconnect tab: %v", err)
		}
	}
	testutil.RequireNoReceive(t, observer.Events(), 100*time.Millisecond,
		"leave must wait for the last tab")

	if err := c.Disconnect(ctx, tabs[2]); err != nil {
		t.Fatalf("disconnect last tab: %v", err)
	}
	leave := drainUntil(t, observer, schema.EventLeave)
	if leave.UserID != "user-alice" {
		t.Errorf("leave = %+v", leave)
	}
}

func TestCursorRebroadcastExcludesSender(t *testing.T) {
	s := openTestStore(t)
	dashboard := createTestDashboard(t, s)
	c := startCoordinator(t, s, dashboard.ID)
	ctx := context.Background()

	alice, _ := c.Connect(ctx, "user-alice", "Alice")
	bob, _ := c.Connect(ctx, "user-bob", "Bob")
	drainUntil(t, alice, schema.EventPresence)
	drainUntil(t, alice, schema.EventJoin)
	drainUntil(t, bob, schema.EventPresence)

	err := c.HandleMessage(ctx, alice, schema.ClientMessage{
		Type:   schema.EventCursor,
		Cursor: &schema.Cursor{X: 10, Y: 20},
	})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	cursor := drainUntil(t, bob, schema.EventCursor)
	if cursor.UserID != "user-alice" || cursor.Cursor.X != 10 {
		t.Errorf("cursor = %+v", cursor)
	}
	testutil.RequireNoReceive(t, alice.Events(), 100*time.Millisecond,
		"sender must not hear its own cursor")

	// The cursor lands in the presence map too.
	state, err := c.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	for _, info := range state.Presence {
		if info.UserID == "user-alice" {
			if info.Cursor == nil || info.Cursor.Y != 20 {
				t.Errorf("presence cursor = %+v", info.Cursor)
			}
		}
	}
}

func TestSelectRebroadcast(t *testing.T) {
	s := openTestStore(t)
	dashboard := createTestDashboard(t, s)
	c := startCoordinator(t, s, dashboard.ID)
	ctx := context.Background()

	alice, _ := c.Connect(ctx, "user-alice", "Alice")
	bob, _ := c.Connect(ctx, "user-bob", "Bob")
	drainUntil(t, bob, schema.EventPresence)

	if err := c.HandleMessage(ctx, alice, schema.ClientMessage{
		Type:   schema.EventSelect,
		ItemID: "item-9",
	}); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	selected := drainUntil(t, bob, schema.EventSelect)
	if selected.ItemID != "item-9" || selected.UserID != "user-alice" {
		t.Errorf("select = %+v", selected)
	}
}

func TestPushItemBroadcastsToAll(t *testing.T) {
	s := openTestStore(t)
	dashboard := createTestDashboard(t, s)
	c := startCoordinator(t, s, dashboard.ID)
	ctx := context.Background()

	alice, _ := c.Connect(ctx, "user-alice", "Alice")
	bob, _ := c.Connect(ctx, "user-bob", "Bob")

	item := schema.DashboardItem{
		ID:          schema.NewItemID(),
		DashboardID: dashboard.ID,
		Type:        schema.ItemTypeNote,
		Content:     "release notes",
	}
	if err := c.PushItem(ctx, schema.EventItemCreate, item); err != nil {
		t.Fatalf("PushItem: %v", err)
	}

	// External pushes go to every connection, the acting user's
	// included.
	for _, connection := range []*Connection{alice, bob} {
		event := drainUntil(t, connection, schema.EventItemCreate)
		if event.Item == nil || event.Item.ID != item.ID {
			t.Errorf("item event = %+v", event)
		}
	}

	state, err := c.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if len(state.Items) != 1 || state.Items[0].Content != "release notes" {
		t.Errorf("state items = %+v", state.Items)
	}
}

func TestPushSessionUpdate(t *testing.T) {
	s := openTestStore(t)
	dashboard := createTestDashboard(t, s)
	c := startCoordinator(t, s, dashboard.ID)
	ctx := context.Background()

	alice, _ := c.Connect(ctx, "user-alice", "Alice")

	session := schema.Session{
		ID:          schema.NewSessionID(),
		DashboardID: dashboard.ID,
		ItemID:      "item-1",
		Status:      schema.SessionActive,
		CreatedAt:   time.Now().UTC(),
	}
	if err := c.PushSession(ctx, session); err != nil {
		t.Fatalf("PushSession: %v", err)
	}

	event := drainUntil(t, alice, schema.EventSessionUpdate)
	if event.Session == nil || event.Session.Status != schema.SessionActive {
		t.Errorf("session event = %+v", event)
	}
}

func TestSlowConnectionClosedOnOverflow(t *testing.T) {
	s := openTestStore(t)
	dashboard := createTestDashboard(t, s)
	c := startCoordinator(t, s, dashboard.ID)
	ctx := context.Background()

	alice, _ := c.Connect(ctx, "user-alice", "Alice")
	bob, _ := c.Connect(ctx, "user-bob", "Bob")

	// Alice keeps up: a goroutine drains her stream until the leave
	// arrives.
	leave := make(chan schema.Event, 1)
	go func() {
		for event := range alice.Events() {
			if event.Type == schema.EventLeave {
				leave <- event
				return
			}
		}
	}()

	// Bob reads nothing. Pushing past his buffer must close him
	// rather than leave him streaming with a permanent, invisible gap
	// in his item view.
	for i := range sendBuffer + 1 {
		item := schema.DashboardItem{
			ID:          schema.ItemID(fmt.Sprintf("item-%d", i)),
			DashboardID: dashboard.ID,
			Type:        schema.ItemTypeNote,
		}
		if err := c.PushItem(ctx, schema.EventItemCreate, item); err != nil {
			t.Fatalf("PushItem %d: %v", i, err)
		}
	}

	deadline := time.After(waitTimeout)
	for closed := false; !closed; {
		select {
		case _, ok := <-bob.Events():
			closed = !ok
		case <-deadline:
			t.Fatal("slow connection was not closed")
		}
	}

	select {
	case event := <-leave:
		if event.UserID != "user-bob" {
			t.Errorf("leave = %+v", event)
		}
	case <-time.After(waitTimeout):
		t.Fatal("no leave broadcast for the closed connection")
	}

	state, err := c.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if len(state.Presence) != 1 || state.Presence[0].UserID != "user-alice" {
		t.Errorf("presence after overflow = %+v", state.Presence)
	}
}

func TestSnapshotRecovery(t *testing.T) {
	s := openTestStore(t)
	dashboard := createTestDashboard(t, s)
	ctx := context.Background()

	first := startCoordinator(t, s, dashboard.ID)
	connection, _ := first.Connect(ctx, "user-alice", "Alice")
	_ = connection

	item := schema.DashboardItem{
		ID:          schema.NewItemID(),
		DashboardID: dashboard.ID,
		Type:        schema.ItemTypeTodo,
		Content:     "survive restart",
	}
	if err := first.PushItem(ctx, schema.EventItemCreate, item); err != nil {
		t.Fatalf("PushItem: %v", err)
	}
	session := schema.Session{
		ID:          schema.NewSessionID(),
		DashboardID: dashboard.ID,
		ItemID:      item.ID,
		Status:      schema.SessionActive,
		CreatedAt:   time.Now().UTC(),
	}
	if err := first.PushSession(ctx, session); err != nil {
		t.Fatalf("PushSession: %v", err)
	}

	// A second coordinator for the same dashboard hydrates from the
	// snapshot the first one persisted: items and sessions survive,
	// presence does not.
	second := startCoordinator(t, s, dashboard.ID)
	state, err := second.State(ctx)
	if err != nil {
		t.Fatalf("State after restart: %v", err)
	}
	if len(state.Items) != 1 || state.Items[0].Content != "survive restart" {
		t.Errorf("items after restart = %+v", state.Items)
	}
	if len(state.Sessions) != 1 || state.Sessions[0].ID != session.ID {
		t.Errorf("sessions after restart = %+v", state.Sessions)
	}
	if len(state.Presence) != 0 {
		t.Errorf("presence after restart = %+v, want empty", state.Presence)
	}
}

func TestHydrateFromStoreWithoutSnapshot(t *testing.T) {
	s := openTestStore(t)
	dashboard := createTestDashboard(t, s)
	ctx := context.Background()

	item := schema.DashboardItem{
		ID:          schema.NewItemID(),
		DashboardID: dashboard.ID,
		Type:        schema.ItemTypeNote,
		Content:     "from the store",
	}
	if err := s.CreateItem(ctx, item); err != nil {
		t.Fatalf("creating item: %v", err)
	}

	c := startCoordinator(t, s, dashboard.ID)
	state, err := c.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if len(state.Items) != 1 || state.Items[0].Content != "from the store" {
		t.Errorf("items = %+v", state.Items)
	}
	if state.Dashboard.Name != "shared board" {
		t.Errorf("dashboard = %+v", state.Dashboard)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	state := State{
		Dashboard: schema.Dashboard{ID: "d1", Name: "board", OwnerID: "u1"},
		Items: []schema.DashboardItem{
			{ID: "i1", DashboardID: "d1", Type: schema.ItemTypeNote, Content: "x"},
		},
		Sessions: []schema.Session{
			{ID: "s1", DashboardID: "d1", ItemID: "i1", Status: schema.SessionActive},
		},
		// Presence must not round-trip through snapshots; encode drops
		// nothing here, but hydrate ignores it, so keep it empty.
	}

	payload, err := encodeSnapshot(state)
	if err != nil {
		t.Fatalf("encodeSnapshot: %v", err)
	}
	decoded, err := decodeSnapshot(payload)
	if err != nil {
		t.Fatalf("decodeSnapshot: %v", err)
	}
	if decoded.Dashboard.Name != "board" || len(decoded.Items) != 1 || len(decoded.Sessions) != 1 {
		t.Errorf("decoded = %+v", decoded)
	}

	if _, err := decodeSnapshot([]byte("not zstd")); err == nil {
		t.Error("expected error for corrupt payload")
	}
}

func TestRegistrySpawnsPerDashboard(t *testing.T) {
	s := openTestStore(t)
	first := createTestDashboard(t, s)
	second := createTestDashboard(t, s)

	registry := NewRegistry(RegistryConfig{Store: s})
	t.Cleanup(registry.Close)
	ctx := context.Background()

	a, err := registry.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := registry.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get again: %v", err)
	}
	if a != b {
		t.Error("same dashboard must share one coordinator")
	}

	c, err := registry.Get(ctx, second.ID)
	if err != nil {
		t.Fatalf("Get second: %v", err)
	}
	if a == c {
		t.Error("different dashboards must not share a coordinator")
	}

	if _, ok := registry.Peek(first.ID); !ok {
		t.Error("Peek must find a running coordinator")
	}
	if _, ok := registry.Peek("never-started"); ok {
		t.Error("Peek must not spawn coordinators")
	}

	registry.Remove(first.ID)
	if _, ok := registry.Peek(first.ID); ok {
		t.Error("removed coordinator still registered")
	}
}

func TestRegistryEvictsIdleCoordinators(t *testing.T) {
	s := openTestStore(t)
	dashboard := createTestDashboard(t, s)
	fakeClock := clock.Fake(time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC))
	registry := NewRegistry(RegistryConfig{
		Store:       s,
		Clock:       fakeClock,
		IdleTimeout: time.Minute,
	})
	t.Cleanup(registry.Close)
	ctx := context.Background()

	c, err := registry.Get(ctx, dashboard.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	connection, err := c.Connect(ctx, "user-alice", "Alice")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// A live connection pins the coordinator across sweeps.
	fakeClock.Advance(3 * time.Minute)
	time.Sleep(50 * time.Millisecond)
	if _, ok := registry.Peek(dashboard.ID); !ok {
		t.Fatal("connected coordinator was evicted")
	}

	if err := c.Disconnect(ctx, connection); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	fakeClock.Advance(2 * time.Minute)

	deadline := time.Now().Add(waitTimeout)
	for {
		if _, ok := registry.Peek(dashboard.ID); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("idle coordinator was not evicted")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The next access spawns a fresh coordinator that rehydrates.
	replacement, err := registry.Get(ctx, dashboard.ID)
	if err != nil {
		t.Fatalf("Get after eviction: %v", err)
	}
	if replacement == c {
		t.Error("evicted coordinator was handed out again")
	}
}

func TestRegistryGetUnknownDashboard(t *testing.T) {
	s := openTestStore(t)
	registry := NewRegistry(RegistryConfig{Store: s})
	t.Cleanup(registry.Close)

	if _, err := registry.Get(context.Background(), "no-such-dashboard"); err == nil {
		t.Fatal("expected error for unknown dashboard")
	}
}
