// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"net/http"

	"github.com/slate-labs/slate/lib/schema"
)

// requireBridge rejects session requests when no execution service is
// configured.
func (s *apiServer) requireBridge(w http.ResponseWriter) bool {
	if s.bridge == nil {
		sendError(w, http.StatusServiceUnavailable, "sessions are not available: no execution service configured")
		return false
	}
	return true
}

func (s *apiServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	if !s.requireBridge(w) {
		return
	}
	dashboardID := schema.DashboardID(r.PathValue("id"))
	itemID := schema.ItemID(r.PathValue("itemId"))

	session, err := s.bridge.CreateSession(r.Context(), dashboardID, itemID, userID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *apiServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	if !s.requireBridge(w) {
		return
	}
	sessionID := schema.SessionID(r.PathValue("id"))
	session, err := s.bridge.SessionForUser(r.Context(), sessionID, userID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *apiServer) handleStopSession(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	if !s.requireBridge(w) {
		return
	}
	sessionID := schema.SessionID(r.PathValue("id"))
	session, err := s.bridge.StopSession(r.Context(), sessionID, userID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
