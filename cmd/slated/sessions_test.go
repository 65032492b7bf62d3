// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"net/http"
	"testing"

	"github.com/slate-labs/slate/lib/schema"
)

func (ts *testServer) sessionPath(dashboard schema.Dashboard, item schema.DashboardItem) string {
	return "/dashboards/" + string(dashboard.ID) + "/items/" + string(item.ID) + "/session"
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	dashboard := ts.createDashboard(t, "alice", "terminals")
	item := ts.createItem(t, dashboard.ID, "alice", schema.ItemTypeTerminal)

	created := ts.request(t, http.MethodPost, ts.sessionPath(dashboard, item), "alice", nil)
	requireStatus(t, created, http.StatusCreated)
	session := decodeResponse[schema.Session](t, created)
	if session.Status != schema.SessionActive {
		t.Fatalf("status = %s, want active", session.Status)
	}
	if session.SandboxSessionID == "" || session.PtyID == "" {
		t.Error("active session is missing remote identifiers")
	}

	// A second create on the same item returns the live session
	// instead of provisioning another.
	again := ts.request(t, http.MethodPost, ts.sessionPath(dashboard, item), "alice", nil)
	requireStatus(t, again, http.StatusCreated)
	if got := decodeResponse[schema.Session](t, again); got.ID != session.ID {
		t.Errorf("second create returned %s, want the existing %s", got.ID, session.ID)
	}
	if ts.sandbox.sessions != 1 {
		t.Errorf("remote sessions created = %d, want 1", ts.sandbox.sessions)
	}

	fetched := ts.request(t, http.MethodGet, "/sessions/"+string(session.ID), "alice", nil)
	requireStatus(t, fetched, http.StatusOK)

	stopped := ts.request(t, http.MethodDelete, "/sessions/"+string(session.ID), "alice", nil)
	requireStatus(t, stopped, http.StatusOK)
	if got := decodeResponse[schema.Session](t, stopped); got.Status != schema.SessionStopped {
		t.Errorf("status = %s, want stopped", got.Status)
	}

	// Stopping twice is a state conflict.
	requireStatus(t, ts.request(t, http.MethodDelete, "/sessions/"+string(session.ID), "alice", nil), http.StatusConflict)
}

func TestSessionOnNonTerminalItem(t *testing.T) {
	ts := newTestServer(t)
	dashboard := ts.createDashboard(t, "alice", "notes only")
	item := ts.createItem(t, dashboard.ID, "alice", schema.ItemTypeNote)

	recorder := ts.request(t, http.MethodPost, ts.sessionPath(dashboard, item), "alice", nil)
	requireStatus(t, recorder, http.StatusBadRequest)
}

func TestSessionAccessControl(t *testing.T) {
	ts := newTestServer(t)
	dashboard := ts.createDashboard(t, "alice", "restricted")
	ts.addMember(t, dashboard.ID, "carol", schema.RoleViewer)
	item := ts.createItem(t, dashboard.ID, "alice", schema.ItemTypeTerminal)

	// Viewers and strangers cannot create sessions; both see 404.
	requireStatus(t, ts.request(t, http.MethodPost, ts.sessionPath(dashboard, item), "carol", nil), http.StatusNotFound)
	requireStatus(t, ts.request(t, http.MethodPost, ts.sessionPath(dashboard, item), "mallory", nil), http.StatusNotFound)
	if ts.sandbox.sessions != 0 {
		t.Errorf("remote sessions created = %d, want 0", ts.sandbox.sessions)
	}

	// Once an editor creates one, the viewer may observe it but the
	// stranger still cannot.
	created := ts.request(t, http.MethodPost, ts.sessionPath(dashboard, item), "alice", nil)
	requireStatus(t, created, http.StatusCreated)
	session := decodeResponse[schema.Session](t, created)

	requireStatus(t, ts.request(t, http.MethodGet, "/sessions/"+string(session.ID), "carol", nil), http.StatusOK)
	requireStatus(t, ts.request(t, http.MethodGet, "/sessions/"+string(session.ID), "mallory", nil), http.StatusNotFound)
	requireStatus(t, ts.request(t, http.MethodDelete, "/sessions/"+string(session.ID), "carol", nil), http.StatusNotFound)
}

func TestSessionUpstreamFailure(t *testing.T) {
	ts := newTestServer(t)
	dashboard := ts.createDashboard(t, "alice", "flaky sandbox")
	item := ts.createItem(t, dashboard.ID, "alice", schema.ItemTypeTerminal)

	ts.sandbox.failNextCreate = true
	recorder := ts.request(t, http.MethodPost, ts.sessionPath(dashboard, item), "alice", nil)
	requireStatus(t, recorder, http.StatusInternalServerError)
	if body := decodeResponse[map[string]string](t, recorder); body["error"] != "session creation failed" {
		t.Errorf("error = %q, want the generic upstream message", body["error"])
	}

	// The failed attempt left an error row, not a live binding; a
	// retry provisions fresh.
	requireStatus(t, ts.request(t, http.MethodPost, ts.sessionPath(dashboard, item), "alice", nil), http.StatusCreated)
}
