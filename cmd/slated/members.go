// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"net/http"

	"github.com/slate-labs/slate/lib/schema"
)

func (s *apiServer) handleListMembers(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	dashboardID := schema.DashboardID(r.PathValue("id"))
	if _, ok := s.requireRole(w, r, dashboardID, userID, false); !ok {
		return
	}
	members, err := s.store.Memberships(r.Context(), dashboardID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if members == nil {
		members = []schema.Membership{}
	}
	writeJSON(w, http.StatusOK, members)
}

// requireOwner gates membership mutations: only the dashboard's owner
// may grant or revoke access. Non-owners get the uniform 404.
func (s *apiServer) requireOwner(w http.ResponseWriter, r *http.Request, dashboardID schema.DashboardID, userID schema.UserID) bool {
	role, ok := s.requireRole(w, r, dashboardID, userID, false)
	if !ok {
		return false
	}
	if role != schema.RoleOwner {
		sendError(w, http.StatusNotFound, "not found")
		return false
	}
	return true
}

func (s *apiServer) handleSetMember(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	dashboardID := schema.DashboardID(r.PathValue("id"))
	if !s.requireOwner(w, r, dashboardID, userID) {
		return
	}
	targetID := schema.UserID(r.PathValue("userId"))
	if targetID == userID {
		sendError(w, http.StatusBadRequest, "cannot change your own role")
		return
	}
	var request struct {
		Role schema.Role `json:"role"`
	}
	if !decodeBody(w, r, &request) {
		return
	}
	// Ownership transfers are out of scope; a dashboard has exactly
	// one owner, established at creation.
	if !request.Role.Valid() || request.Role == schema.RoleOwner {
		sendError(w, http.StatusBadRequest, "role must be editor or viewer")
		return
	}

	membership := schema.Membership{
		DashboardID: dashboardID,
		UserID:      targetID,
		Role:        request.Role,
	}
	if err := s.store.SetMembership(r.Context(), membership); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, membership)
}

func (s *apiServer) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	dashboardID := schema.DashboardID(r.PathValue("id"))
	if !s.requireOwner(w, r, dashboardID, userID) {
		return
	}
	targetID := schema.UserID(r.PathValue("userId"))
	if targetID == userID {
		sendError(w, http.StatusBadRequest, "cannot remove your own membership")
		return
	}
	if err := s.store.RemoveMembership(r.Context(), dashboardID, targetID); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
