// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/slate-labs/slate/lib/clock"
	"github.com/slate-labs/slate/lib/coordinator"
	"github.com/slate-labs/slate/lib/recipe"
	"github.com/slate-labs/slate/lib/scheduler"
	"github.com/slate-labs/slate/lib/schema"
	"github.com/slate-labs/slate/lib/sessionbridge"
	"github.com/slate-labs/slate/lib/store"
)

// maxBodySize bounds request bodies. Dashboard items carry inline
// content but nothing that should approach this.
const maxBodySize = 4 << 20

// identityHeader carries the authenticated user id, set by the
// fronting gateway after it verifies the end-user credential. The
// control plane trusts it as deployment policy: slated is never
// exposed directly.
const (
	identityHeader     = "X-Slate-User"
	identityNameHeader = "X-Slate-User-Name"
)

// apiServer is the REST and streaming surface of the control plane.
type apiServer struct {
	store     *store.Store
	registry  *coordinator.Registry
	bridge    *sessionbridge.Bridge
	engine    *recipe.Engine
	scheduler *scheduler.Scheduler
	verifyKey ed25519.PublicKey
	clock     clock.Clock
	logger    *slog.Logger
}

// routes builds the request mux. Method-qualified patterns give 405s
// for free.
func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /dashboards", s.handleListDashboards)
	mux.HandleFunc("POST /dashboards", s.handleCreateDashboard)
	mux.HandleFunc("GET /dashboards/{id}", s.handleGetDashboard)
	mux.HandleFunc("PUT /dashboards/{id}", s.handleUpdateDashboard)
	mux.HandleFunc("DELETE /dashboards/{id}", s.handleDeleteDashboard)
	mux.HandleFunc("GET /dashboards/{id}/state", s.handleDashboardState)
	mux.HandleFunc("GET /dashboards/{id}/ws", s.handleDashboardStream)

	mux.HandleFunc("GET /dashboards/{id}/members", s.handleListMembers)
	mux.HandleFunc("PUT /dashboards/{id}/members/{userId}", s.handleSetMember)
	mux.HandleFunc("DELETE /dashboards/{id}/members/{userId}", s.handleRemoveMember)

	mux.HandleFunc("POST /dashboards/{id}/items", s.handleCreateItem)
	mux.HandleFunc("PUT /dashboards/{id}/items/{itemId}", s.handleUpdateItem)
	mux.HandleFunc("DELETE /dashboards/{id}/items/{itemId}", s.handleDeleteItem)
	mux.HandleFunc("POST /dashboards/{id}/items/{itemId}/session", s.handleCreateSession)

	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleStopSession)
	mux.HandleFunc("GET /sessions/{id}/ptys/{ptyId}/ws", s.handlePtyStream)

	mux.HandleFunc("GET /recipes", s.handleListRecipes)
	mux.HandleFunc("POST /recipes", s.handleCreateRecipe)
	mux.HandleFunc("GET /recipes/{id}", s.handleGetRecipe)
	mux.HandleFunc("PUT /recipes/{id}", s.handleUpdateRecipe)
	mux.HandleFunc("DELETE /recipes/{id}", s.handleDeleteRecipe)
	mux.HandleFunc("POST /recipes/{id}/execute", s.handleExecuteRecipe)
	mux.HandleFunc("GET /recipes/{id}/executions", s.handleListExecutions)

	mux.HandleFunc("POST /executions/{id}/pause", s.handlePauseExecution)
	mux.HandleFunc("POST /executions/{id}/resume", s.handleResumeExecution)
	mux.HandleFunc("GET /executions/{id}/artifacts", s.handleListArtifacts)

	mux.HandleFunc("GET /schedules", s.handleListSchedules)
	mux.HandleFunc("POST /schedules", s.handleCreateSchedule)
	mux.HandleFunc("GET /schedules/{id}", s.handleGetSchedule)
	mux.HandleFunc("PUT /schedules/{id}", s.handleUpdateSchedule)
	mux.HandleFunc("DELETE /schedules/{id}", s.handleDeleteSchedule)
	mux.HandleFunc("POST /schedules/{id}/enable", s.handleEnableSchedule)
	mux.HandleFunc("POST /schedules/{id}/disable", s.handleDisableSchedule)
	mux.HandleFunc("POST /schedules/{id}/trigger", s.handleTriggerSchedule)

	mux.HandleFunc("POST /internal/executions/{id}/artifacts", s.internalAuth(s.handleInternalArtifact))
	mux.HandleFunc("POST /internal/events", s.internalAuth(s.handleInternalEvent))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}

// identity resolves the acting user from the request. Requests without
// an identity are rejected before any handler logic runs.
func (s *apiServer) identity(w http.ResponseWriter, r *http.Request) (schema.UserID, string, bool) {
	userID := schema.UserID(r.Header.Get(identityHeader))
	if userID == "" {
		sendError(w, http.StatusUnauthorized, "missing user identity")
		return "", "", false
	}
	userName := r.Header.Get(identityNameHeader)
	if userName == "" {
		userName = string(userID)
	}
	return userID, userName, true
}

// requireRole loads the caller's membership on a dashboard. Absence of
// the dashboard and absence of a membership produce the same 404: the
// API never reveals whether a hidden dashboard exists.
func (s *apiServer) requireRole(w http.ResponseWriter, r *http.Request, dashboardID schema.DashboardID, userID schema.UserID, needEdit bool) (schema.Role, bool) {
	role, err := s.store.MembershipRole(r.Context(), dashboardID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendError(w, http.StatusNotFound, "not found")
		} else {
			s.internalError(w, r, err)
		}
		return "", false
	}
	if needEdit && !role.CanEdit() {
		sendError(w, http.StatusNotFound, "not found")
		return "", false
	}
	return role, true
}

// decodeBody reads a bounded JSON request body.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			sendError(w, http.StatusBadRequest, "request body is required")
		} else {
			sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		}
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// respondError maps domain errors onto the HTTP taxonomy: missing or
// inaccessible resources are a uniform 404, validation failures 400,
// state conflicts 409, upstream sandbox failures 500.
func (s *apiServer) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, sessionbridge.ErrNoAccess):
		sendError(w, http.StatusNotFound, "not found")
	case errors.Is(err, sessionbridge.ErrInvalidItem),
		errors.Is(err, scheduler.ErrInvalidSchedule):
		sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, recipe.ErrConflict), errors.Is(err, sessionbridge.ErrConflict):
		sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, sessionbridge.ErrUpstream):
		sendError(w, http.StatusInternalServerError, "session creation failed")
	default:
		s.internalError(w, r, err)
	}
}

func (s *apiServer) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	sendError(w, http.StatusInternalServerError, "internal error")
}

// pushCoordinator routes a mutation into the dashboard's coordinator
// if one is running. Broadcast failures never fail the REST operation
// that already committed.
func (s *apiServer) pushCoordinator(dashboardID schema.DashboardID, push func(*coordinator.Coordinator) error) {
	c, ok := s.registry.Peek(dashboardID)
	if !ok {
		return
	}
	if err := push(c); err != nil {
		s.logger.Warn("coordinator push failed",
			"dashboard_id", dashboardID,
			"error", err,
		)
	}
}
