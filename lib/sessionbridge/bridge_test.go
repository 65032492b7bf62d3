// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package sessionbridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/slate-labs/slate/lib/sandbox"
	"github.com/slate-labs/slate/lib/schema"
	"github.com/slate-labs/slate/lib/store"
)

// fakeSandbox is an in-memory stand-in for the execution service.
type fakeSandbox struct {
	sessions      map[string]bool
	createCalls   int
	ptyCalls      int
	deleteCalls   int
	failCreate    bool
	failPty       bool
	failDelete    bool
	streamBackend net.Conn
}

func newFakeSandbox() *fakeSandbox {
	return &fakeSandbox{sessions: make(map[string]bool)}
}

func (f *fakeSandbox) CreateSession(ctx context.Context, request sandbox.CreateSessionRequest) (*sandbox.Session, error) {
	f.createCalls++
	if f.failCreate {
		return nil, errors.New("sandbox down")
	}
	id := fmt.Sprintf("remote-%d", f.createCalls)
	f.sessions[id] = true
	return &sandbox.Session{ID: id, Region: request.Region, Status: "running"}, nil
}

func (f *fakeSandbox) DeleteSession(ctx context.Context, sessionID string) error {
	f.deleteCalls++
	if f.failDelete {
		return errors.New("delete failed")
	}
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeSandbox) CreatePty(ctx context.Context, sessionID string, request sandbox.CreatePtyRequest) (*sandbox.Pty, error) {
	f.ptyCalls++
	if f.failPty {
		return nil, errors.New("pty allocation failed")
	}
	return &sandbox.Pty{ID: "pty-" + sessionID, SessionID: sessionID, OwnerID: request.OwnerID}, nil
}

func (f *fakeSandbox) OpenPtyStream(ctx context.Context, sessionID, ptyID string) (net.Conn, error) {
	if f.streamBackend == nil {
		return nil, errors.New("no stream backend")
	}
	return f.streamBackend, nil
}

// fakeNotifier records pushed sessions.
type fakeNotifier struct {
	pushed []schema.Session
}

func (f *fakeNotifier) PushSession(ctx context.Context, session schema.Session) error {
	f.pushed = append(f.pushed, session)
	return nil
}

type fixture struct {
	store     *store.Store
	sandbox   *fakeSandbox
	notifier  *fakeNotifier
	bridge    *Bridge
	dashboard schema.Dashboard
	terminal  schema.DashboardItem
	note      schema.DashboardItem
}

const (
	ownerUser  schema.UserID = "user-owner"
	editorUser schema.UserID = "user-editor"
	viewerUser schema.UserID = "user-viewer"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "bridge-test.db")})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	dashboard := schema.Dashboard{
		ID:        schema.NewDashboardID(),
		Name:      "board",
		OwnerID:   ownerUser,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.CreateDashboard(ctx, dashboard); err != nil {
		t.Fatalf("creating dashboard: %v", err)
	}
	for user, role := range map[schema.UserID]schema.Role{
		editorUser: schema.RoleEditor,
		viewerUser: schema.RoleViewer,
	} {
		if err := s.SetMembership(ctx, schema.Membership{
			DashboardID: dashboard.ID, UserID: user, Role: role,
		}); err != nil {
			t.Fatalf("setting membership: %v", err)
		}
	}

	terminal := schema.DashboardItem{
		ID: schema.NewItemID(), DashboardID: dashboard.ID, Type: schema.ItemTypeTerminal,
	}
	note := schema.DashboardItem{
		ID: schema.NewItemID(), DashboardID: dashboard.ID, Type: schema.ItemTypeNote,
	}
	for _, item := range []schema.DashboardItem{terminal, note} {
		if err := s.CreateItem(ctx, item); err != nil {
			t.Fatalf("creating item: %v", err)
		}
	}

	fake := newFakeSandbox()
	notifier := &fakeNotifier{}
	bridge := New(Config{
		Store:    s,
		Sandbox:  fake,
		Notifier: notifier,
		Region:   "local",
	})
	return &fixture{
		store: s, sandbox: fake, notifier: notifier, bridge: bridge,
		dashboard: dashboard, terminal: terminal, note: note,
	}
}

func TestCreateSessionSaga(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.bridge.CreateSession(ctx, f.dashboard.ID, f.terminal.ID, editorUser)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.Status != schema.SessionActive {
		t.Errorf("status = %s, want active", session.Status)
	}
	if session.SandboxSessionID == "" || session.PtyID == "" {
		t.Errorf("remote identifiers missing: %+v", session)
	}
	if session.Region != "local" {
		t.Errorf("region = %q", session.Region)
	}

	stored, err := f.store.Session(ctx, session.ID)
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	if stored.Status != schema.SessionActive {
		t.Errorf("stored status = %s", stored.Status)
	}

	if len(f.notifier.pushed) != 1 || f.notifier.pushed[0].Status != schema.SessionActive {
		t.Errorf("pushed = %+v, want one active push", f.notifier.pushed)
	}
}

func TestCreateSessionIdempotentReuse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.bridge.CreateSession(ctx, f.dashboard.ID, f.terminal.ID, editorUser)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := f.bridge.CreateSession(ctx, f.dashboard.ID, f.terminal.ID, ownerUser)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second create returned %s, want existing %s", second.ID, first.ID)
	}
	if f.sandbox.createCalls != 1 {
		t.Errorf("remote create called %d times, want 1", f.sandbox.createCalls)
	}

	// Stopping frees the item for a fresh session.
	if _, err := f.bridge.StopSession(ctx, first.ID, editorUser); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	third, err := f.bridge.CreateSession(ctx, f.dashboard.ID, f.terminal.ID, editorUser)
	if err != nil {
		t.Fatalf("third create: %v", err)
	}
	if third.ID == first.ID {
		t.Error("stopped session must not be reused")
	}
}

func TestCreateSessionAccessControl(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		item    schema.ItemID
		user    schema.UserID
		wantErr error
	}{
		{"viewer denied", f.terminal.ID, viewerUser, ErrNoAccess},
		{"non-member denied", f.terminal.ID, "user-stranger", ErrNoAccess},
		{"unknown item", "no-such-item", editorUser, ErrNoAccess},
		{"non-terminal item", f.note.ID, editorUser, ErrInvalidItem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.bridge.CreateSession(ctx, f.dashboard.ID, tt.item, tt.user); !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
	if f.sandbox.createCalls != 0 {
		t.Errorf("remote create called %d times for rejected requests", f.sandbox.createCalls)
	}
}

func TestCreateSessionItemOnOtherDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := schema.Dashboard{
		ID: schema.NewDashboardID(), Name: "other", OwnerID: editorUser,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	if err := f.store.CreateDashboard(ctx, other); err != nil {
		t.Fatalf("creating dashboard: %v", err)
	}

	// Editor has edit rights on "other" but the item lives elsewhere.
	if _, err := f.bridge.CreateSession(ctx, other.ID, f.terminal.ID, editorUser); !errors.Is(err, ErrNoAccess) {
		t.Fatalf("got %v, want ErrNoAccess", err)
	}
}

func TestCreateSessionRemoteFailure(t *testing.T) {
	f := newFixture(t)
	f.sandbox.failCreate = true
	ctx := context.Background()

	_, err := f.bridge.CreateSession(ctx, f.dashboard.ID, f.terminal.ID, editorUser)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("got %v, want ErrUpstream", err)
	}

	// The compensating state is visible: the row exists in "error" and
	// no longer blocks the item.
	sessions, err := f.store.SessionsForDashboard(ctx, f.dashboard.ID)
	if err != nil {
		t.Fatalf("loading sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Status != schema.SessionError {
		t.Fatalf("sessions = %+v, want one errored row", sessions)
	}
	if len(f.notifier.pushed) != 1 || f.notifier.pushed[0].Status != schema.SessionError {
		t.Errorf("pushed = %+v, want error push", f.notifier.pushed)
	}

	// A retry after the sandbox recovers starts fresh.
	f.sandbox.failCreate = false
	session, err := f.bridge.CreateSession(ctx, f.dashboard.ID, f.terminal.ID, editorUser)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if session.Status != schema.SessionActive {
		t.Errorf("retry status = %s", session.Status)
	}
}

func TestCreateSessionPtyFailureCleansUp(t *testing.T) {
	f := newFixture(t)
	f.sandbox.failPty = true
	ctx := context.Background()

	_, err := f.bridge.CreateSession(ctx, f.dashboard.ID, f.terminal.ID, editorUser)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("got %v, want ErrUpstream", err)
	}
	if f.sandbox.deleteCalls != 1 {
		t.Errorf("remote session not cleaned up after pty failure (deletes = %d)", f.sandbox.deleteCalls)
	}
	if len(f.sandbox.sessions) != 0 {
		t.Errorf("remote sessions leaked: %v", f.sandbox.sessions)
	}
}

func TestStopSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.bridge.CreateSession(ctx, f.dashboard.ID, f.terminal.ID, editorUser)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	stopped, err := f.bridge.StopSession(ctx, session.ID, ownerUser)
	if err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if stopped.Status != schema.SessionStopped {
		t.Errorf("status = %s, want stopped", stopped.Status)
	}
	if stopped.StoppedAt == nil {
		t.Error("StoppedAt not stamped")
	}
	if len(f.sandbox.sessions) != 0 {
		t.Errorf("remote session not deleted: %v", f.sandbox.sessions)
	}

	// Stopping again is a conflict.
	if _, err := f.bridge.StopSession(ctx, session.ID, editorUser); !errors.Is(err, ErrConflict) {
		t.Errorf("double stop: got %v, want ErrConflict", err)
	}
}

func TestStopSessionRemoteFailureIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.bridge.CreateSession(ctx, f.dashboard.ID, f.terminal.ID, editorUser)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	f.sandbox.failDelete = true
	stopped, err := f.bridge.StopSession(ctx, session.ID, editorUser)
	if err != nil {
		t.Fatalf("StopSession with failing remote delete: %v", err)
	}
	if stopped.Status != schema.SessionStopped {
		t.Errorf("status = %s, want stopped despite remote failure", stopped.Status)
	}
}

func TestStopSessionAccessControl(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.bridge.CreateSession(ctx, f.dashboard.ID, f.terminal.ID, editorUser)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := f.bridge.StopSession(ctx, session.ID, viewerUser); !errors.Is(err, ErrNoAccess) {
		t.Errorf("viewer stop: got %v, want ErrNoAccess", err)
	}
	if _, err := f.bridge.StopSession(ctx, "no-such-session", editorUser); !errors.Is(err, ErrNoAccess) {
		t.Errorf("unknown session: got %v, want ErrNoAccess", err)
	}
}

func TestOpenStreamValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.bridge.CreateSession(ctx, f.dashboard.ID, f.terminal.ID, editorUser)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// Wrong PTY id is indistinguishable from not-found.
	if _, err := f.bridge.OpenStream(ctx, session.ID, "wrong-pty", editorUser); !errors.Is(err, ErrNoAccess) {
		t.Errorf("wrong pty: got %v, want ErrNoAccess", err)
	}
	// Strangers cannot stream.
	if _, err := f.bridge.OpenStream(ctx, session.ID, session.PtyID, "user-stranger"); !errors.Is(err, ErrNoAccess) {
		t.Errorf("stranger: got %v, want ErrNoAccess", err)
	}

	// Any member, viewers included, may stream the matching channel.
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()
	f.sandbox.streamBackend = remote
	conn, err := f.bridge.OpenStream(ctx, session.ID, session.PtyID, viewerUser)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	if conn == nil {
		t.Fatal("expected a connection")
	}

	// A stopped session no longer streams.
	if _, err := f.bridge.StopSession(ctx, session.ID, editorUser); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if _, err := f.bridge.OpenStream(ctx, session.ID, session.PtyID, editorUser); !errors.Is(err, ErrNoAccess) {
		t.Errorf("stopped session stream: got %v, want ErrNoAccess", err)
	}
}

func TestProxyBidirectional(t *testing.T) {
	clientNear, clientFar := net.Pipe()
	remoteNear, remoteFar := net.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- Proxy(context.Background(), clientFar, remoteFar)
	}()

	// Client to remote.
	go clientNear.Write([]byte("ls -la\n"))
	buf := make([]byte, 7)
	if _, err := remoteNear.Read(buf); err != nil {
		t.Fatalf("reading remote side: %v", err)
	}
	if string(buf) != "ls -la\n" {
		t.Errorf("remote received %q", buf)
	}

	// Remote to client.
	go remoteNear.Write([]byte("total 0\n"))
	buf = make([]byte, 8)
	if _, err := clientNear.Read(buf); err != nil {
		t.Fatalf("reading client side: %v", err)
	}
	if string(buf) != "total 0\n" {
		t.Errorf("client received %q", buf)
	}

	// Hanging up one side ends the proxy cleanly.
	clientNear.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Proxy returned %v, want nil on clean hangup", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("proxy did not terminate after hangup")
	}
}
