// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/slate-labs/slate/lib/clock"
	"github.com/slate-labs/slate/lib/coordinator"
	"github.com/slate-labs/slate/lib/recipe"
	"github.com/slate-labs/slate/lib/sandbox"
	"github.com/slate-labs/slate/lib/scheduler"
	"github.com/slate-labs/slate/lib/schema"
	"github.com/slate-labs/slate/lib/servicetoken"
	"github.com/slate-labs/slate/lib/sessionbridge"
	"github.com/slate-labs/slate/lib/store"
)

// stubSandbox satisfies the bridge's execution service surface with
// in-memory bookkeeping.
type stubSandbox struct {
	sessions       int
	ptys           int
	deleteCalls    int
	failNextCreate bool
}

func (s *stubSandbox) CreateSession(ctx context.Context, request sandbox.CreateSessionRequest) (*sandbox.Session, error) {
	if s.failNextCreate {
		s.failNextCreate = false
		return nil, fmt.Errorf("stub: induced create failure")
	}
	s.sessions++
	return &sandbox.Session{ID: fmt.Sprintf("remote-%d", s.sessions), Status: "running"}, nil
}

func (s *stubSandbox) DeleteSession(ctx context.Context, sessionID string) error {
	s.deleteCalls++
	return nil
}

func (s *stubSandbox) CreatePty(ctx context.Context, sessionID string, request sandbox.CreatePtyRequest) (*sandbox.Pty, error) {
	s.ptys++
	return &sandbox.Pty{ID: fmt.Sprintf("pty-%d", s.ptys), SessionID: sessionID, Rows: request.Rows, Cols: request.Cols}, nil
}

func (s *stubSandbox) OpenPtyStream(ctx context.Context, sessionID, ptyID string) (net.Conn, error) {
	client, server := net.Pipe()
	go func() {
		// Echo everything back, like a shell with stty echo.
		io.Copy(server, server)
	}()
	return client, nil
}

type testServer struct {
	api     *apiServer
	handler http.Handler
	store   *store.Store
	clock   *clock.FakeClock
	sandbox *stubSandbox
	signKey ed25519.PrivateKey
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "slated-test.db")})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	fakeClock := clock.Fake(time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC))
	logger := slog.New(slog.DiscardHandler)

	registry := coordinator.NewRegistry(coordinator.RegistryConfig{
		Store: st,
		Clock: fakeClock,
	})
	t.Cleanup(registry.Close)

	stub := &stubSandbox{}
	bridge := sessionbridge.New(sessionbridge.Config{
		Store:   st,
		Sandbox: stub,
		Region:  "test",
		Clock:   fakeClock,
	})

	engine := recipe.New(recipe.Config{Store: st, Clock: fakeClock})
	sched := scheduler.New(scheduler.Config{Store: st, Executions: engine, Clock: fakeClock})

	publicKey, privateKey, err := servicetoken.GenerateKeypair()
	if err != nil {
		t.Fatalf("generating keypair: %v", err)
	}

	api := &apiServer{
		store:     st,
		registry:  registry,
		bridge:    bridge,
		engine:    engine,
		scheduler: sched,
		verifyKey: publicKey,
		clock:     fakeClock,
		logger:    logger,
	}
	return &testServer{
		api:     api,
		handler: api.routes(),
		store:   st,
		clock:   fakeClock,
		sandbox: stub,
		signKey: privateKey,
	}
}

// request performs one in-process HTTP request as the given user. An
// empty user sends no identity header.
func (ts *testServer) request(t *testing.T, method, path string, as schema.UserID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if as != "" {
		req.Header.Set(identityHeader, string(as))
	}
	recorder := httptest.NewRecorder()
	ts.handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeResponse[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("decoding response %q: %v", recorder.Body.String(), err)
	}
	return value
}

func requireStatus(t *testing.T, recorder *httptest.ResponseRecorder, want int) {
	t.Helper()
	if recorder.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", recorder.Code, want, recorder.Body.String())
	}
}

// createDashboard seeds a dashboard through the API as the given
// owner.
func (ts *testServer) createDashboard(t *testing.T, owner schema.UserID, name string) schema.Dashboard {
	t.Helper()
	recorder := ts.request(t, http.MethodPost, "/dashboards", owner, map[string]string{"name": name})
	requireStatus(t, recorder, http.StatusCreated)
	return decodeResponse[schema.Dashboard](t, recorder)
}

func (ts *testServer) addMember(t *testing.T, dashboardID schema.DashboardID, userID schema.UserID, role schema.Role) {
	t.Helper()
	err := ts.store.SetMembership(context.Background(), schema.Membership{
		DashboardID: dashboardID,
		UserID:      userID,
		Role:        role,
	})
	if err != nil {
		t.Fatalf("seeding membership: %v", err)
	}
}

func (ts *testServer) createItem(t *testing.T, dashboardID schema.DashboardID, as schema.UserID, itemType schema.ItemType) schema.DashboardItem {
	t.Helper()
	recorder := ts.request(t, http.MethodPost, "/dashboards/"+string(dashboardID)+"/items", as, map[string]any{
		"type":     itemType,
		"content":  "hello",
		"position": map[string]float64{"x": 10, "y": 20},
		"size":     map[string]float64{"width": 300, "height": 200},
	})
	requireStatus(t, recorder, http.StatusCreated)
	return decodeResponse[schema.DashboardItem](t, recorder)
}

func TestMissingIdentityRejected(t *testing.T) {
	ts := newTestServer(t)
	recorder := ts.request(t, http.MethodGet, "/dashboards", "", nil)
	requireStatus(t, recorder, http.StatusUnauthorized)
}

func TestHealthzNeedsNoIdentity(t *testing.T) {
	ts := newTestServer(t)
	recorder := ts.request(t, http.MethodGet, "/healthz", "", nil)
	requireStatus(t, recorder, http.StatusOK)
}

func TestUnknownAndInaccessibleAreTheSame404(t *testing.T) {
	ts := newTestServer(t)
	dashboard := ts.createDashboard(t, "alice", "private board")

	missing := ts.request(t, http.MethodGet, "/dashboards/nonexistent", "bob", nil)
	requireStatus(t, missing, http.StatusNotFound)
	hidden := ts.request(t, http.MethodGet, "/dashboards/"+string(dashboard.ID), "bob", nil)
	requireStatus(t, hidden, http.StatusNotFound)

	if missing.Body.String() != hidden.Body.String() {
		t.Errorf("404 bodies differ: %q vs %q — existence is leaking",
			missing.Body.String(), hidden.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	recorder := ts.request(t, http.MethodPatch, "/dashboards", "alice", nil)
	requireStatus(t, recorder, http.StatusMethodNotAllowed)
}
