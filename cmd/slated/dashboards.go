// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"net/http"

	"github.com/slate-labs/slate/lib/coordinator"
	"github.com/slate-labs/slate/lib/schema"
	"github.com/slate-labs/slate/lib/store"
)

func (s *apiServer) handleListDashboards(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	dashboards, err := s.store.DashboardsForUser(r.Context(), userID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if dashboards == nil {
		dashboards = []schema.Dashboard{}
	}
	writeJSON(w, http.StatusOK, dashboards)
}

func (s *apiServer) handleCreateDashboard(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	var request struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &request) {
		return
	}

	now := s.clock.Now().UTC()
	dashboard := schema.Dashboard{
		ID:        schema.NewDashboardID(),
		Name:      request.Name,
		OwnerID:   userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := dashboard.Validate(); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreateDashboard(r.Context(), dashboard); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dashboard)
}

func (s *apiServer) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	dashboardID := schema.DashboardID(r.PathValue("id"))
	if _, ok := s.requireRole(w, r, dashboardID, userID, false); !ok {
		return
	}
	dashboard, err := s.store.Dashboard(r.Context(), dashboardID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (s *apiServer) handleUpdateDashboard(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	dashboardID := schema.DashboardID(r.PathValue("id"))
	if _, ok := s.requireRole(w, r, dashboardID, userID, true); !ok {
		return
	}
	var request struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &request) {
		return
	}

	dashboard, err := s.store.Dashboard(r.Context(), dashboardID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	dashboard.Name = request.Name
	dashboard.UpdatedAt = s.clock.Now().UTC()
	if err := dashboard.Validate(); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.UpdateDashboard(r.Context(), dashboard); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.pushCoordinator(dashboardID, func(c *coordinator.Coordinator) error {
		return c.PushDashboard(r.Context(), dashboard)
	})
	writeJSON(w, http.StatusOK, dashboard)
}

func (s *apiServer) handleDeleteDashboard(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	dashboardID := schema.DashboardID(r.PathValue("id"))
	role, ok := s.requireRole(w, r, dashboardID, userID, false)
	if !ok {
		return
	}
	// Only the owner may delete a dashboard outright.
	if role != schema.RoleOwner {
		sendError(w, http.StatusNotFound, "not found")
		return
	}
	if err := s.store.DeleteDashboard(r.Context(), dashboardID); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.registry.Remove(dashboardID)
	w.WriteHeader(http.StatusNoContent)
}

// handleDashboardState serves the full current view, hydrating a
// client before it opens its streaming connection.
func (s *apiServer) handleDashboardState(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	dashboardID := schema.DashboardID(r.PathValue("id"))
	if _, ok := s.requireRole(w, r, dashboardID, userID, false); !ok {
		return
	}
	c, err := s.registry.Get(r.Context(), dashboardID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	state, err := c.State(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if state.Presence == nil {
		state.Presence = []schema.PresenceInfo{}
	}
	writeJSON(w, http.StatusOK, state)
}

// itemRequest is the mutable surface of an item accepted from clients.
type itemRequest struct {
	Type     schema.ItemType `json:"type"`
	Content  string          `json:"content"`
	Position schema.Position `json:"position"`
	Size     schema.Size     `json:"size"`
	Metadata map[string]any  `json:"metadata"`
}

func (s *apiServer) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	dashboardID := schema.DashboardID(r.PathValue("id"))
	if _, ok := s.requireRole(w, r, dashboardID, userID, true); !ok {
		return
	}
	var request itemRequest
	if !decodeBody(w, r, &request) {
		return
	}

	item := schema.DashboardItem{
		ID:          schema.NewItemID(),
		DashboardID: dashboardID,
		Type:        request.Type,
		Content:     request.Content,
		Position:    request.Position,
		Size:        request.Size,
		Metadata:    request.Metadata,
	}
	if err := item.Validate(); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreateItem(r.Context(), item); err != nil {
		s.internalError(w, r, err)
		return
	}
	s.touchDashboard(r, dashboardID)
	s.pushCoordinator(dashboardID, func(c *coordinator.Coordinator) error {
		return c.PushItem(r.Context(), schema.EventItemCreate, item)
	})
	writeJSON(w, http.StatusCreated, item)
}

func (s *apiServer) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	dashboardID := schema.DashboardID(r.PathValue("id"))
	if _, ok := s.requireRole(w, r, dashboardID, userID, true); !ok {
		return
	}
	item, ok := s.itemOnDashboard(w, r, dashboardID)
	if !ok {
		return
	}
	var request itemRequest
	if !decodeBody(w, r, &request) {
		return
	}

	item.Type = request.Type
	item.Content = request.Content
	item.Position = request.Position
	item.Size = request.Size
	item.Metadata = request.Metadata
	if err := item.Validate(); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.UpdateItem(r.Context(), item); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.touchDashboard(r, dashboardID)
	s.pushCoordinator(dashboardID, func(c *coordinator.Coordinator) error {
		return c.PushItem(r.Context(), schema.EventItemUpdate, item)
	})
	writeJSON(w, http.StatusOK, item)
}

func (s *apiServer) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	dashboardID := schema.DashboardID(r.PathValue("id"))
	if _, ok := s.requireRole(w, r, dashboardID, userID, true); !ok {
		return
	}
	item, ok := s.itemOnDashboard(w, r, dashboardID)
	if !ok {
		return
	}
	if err := s.store.DeleteItem(r.Context(), item.ID); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.touchDashboard(r, dashboardID)
	s.pushCoordinator(dashboardID, func(c *coordinator.Coordinator) error {
		return c.PushItemDelete(r.Context(), item.ID)
	})
	w.WriteHeader(http.StatusNoContent)
}

// itemOnDashboard loads the addressed item and verifies it belongs to
// the dashboard in the path. A mismatch is the uniform 404.
func (s *apiServer) itemOnDashboard(w http.ResponseWriter, r *http.Request, dashboardID schema.DashboardID) (schema.DashboardItem, bool) {
	itemID := schema.ItemID(r.PathValue("itemId"))
	item, err := s.store.Item(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendError(w, http.StatusNotFound, "not found")
		} else {
			s.internalError(w, r, err)
		}
		return schema.DashboardItem{}, false
	}
	if item.DashboardID != dashboardID {
		sendError(w, http.StatusNotFound, "not found")
		return schema.DashboardItem{}, false
	}
	return item, true
}

func (s *apiServer) touchDashboard(r *http.Request, dashboardID schema.DashboardID) {
	if err := s.store.TouchDashboard(r.Context(), dashboardID, s.clock.Now().UTC().UnixMilli()); err != nil {
		s.logger.Warn("touching dashboard", "dashboard_id", dashboardID, "error", err)
	}
}
