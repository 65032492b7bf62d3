// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"net/http"

	"github.com/slate-labs/slate/lib/schema"
	"github.com/slate-labs/slate/lib/store"
)

// scheduleAccess loads the recipe a schedule fires and applies the
// recipe's access rules. A schedule is as visible as its recipe.
func (s *apiServer) scheduleAccess(w http.ResponseWriter, r *http.Request, recipeID schema.RecipeID, userID schema.UserID, needEdit bool) bool {
	rec, err := s.store.Recipe(r.Context(), recipeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The recipe was deleted after the schedule was created.
			// The schedule remains manageable so it can be cleaned up.
			return true
		}
		s.internalError(w, r, err)
		return false
	}
	return s.recipeAccess(w, r, rec, userID, needEdit)
}

// loadSchedule fetches a schedule and applies the owning recipe's
// access rules, writing the error response itself on failure.
func (s *apiServer) loadSchedule(w http.ResponseWriter, r *http.Request, userID schema.UserID, needEdit bool) (schema.Schedule, bool) {
	schedule, err := s.store.Schedule(r.Context(), schema.ScheduleID(r.PathValue("id")))
	if err != nil {
		s.respondError(w, r, err)
		return schema.Schedule{}, false
	}
	if !s.scheduleAccess(w, r, schedule.RecipeID, userID, needEdit) {
		return schema.Schedule{}, false
	}
	return schedule, true
}

func (s *apiServer) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	schedules, err := s.store.Schedules(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	visible, err := s.visibleRecipeIDs(r, userID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	filtered := []schema.Schedule{}
	for _, schedule := range schedules {
		if _, ok := visible[schedule.RecipeID]; ok {
			filtered = append(filtered, schedule)
		}
	}
	writeJSON(w, http.StatusOK, filtered)
}

// visibleRecipeIDs collects the ids of every recipe the user can see,
// for filtering schedule listings.
func (s *apiServer) visibleRecipeIDs(r *http.Request, userID schema.UserID) (map[schema.RecipeID]struct{}, error) {
	dashboards, err := s.store.DashboardsForUser(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	ids := make([]schema.DashboardID, len(dashboards))
	for i, d := range dashboards {
		ids[i] = d.ID
	}
	recipes, err := s.store.RecipesVisibleTo(r.Context(), ids)
	if err != nil {
		return nil, err
	}
	visible := make(map[schema.RecipeID]struct{}, len(recipes))
	for _, rec := range recipes {
		visible[rec.ID] = struct{}{}
	}
	return visible, nil
}

func (s *apiServer) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	var schedule schema.Schedule
	if !decodeBody(w, r, &schedule) {
		return
	}
	if schedule.RecipeID == "" {
		sendError(w, http.StatusBadRequest, "recipeId is required")
		return
	}
	rec, err := s.store.Recipe(r.Context(), schedule.RecipeID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !s.recipeAccess(w, r, rec, userID, true) {
		return
	}
	created, err := s.scheduler.Create(r.Context(), schedule)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *apiServer) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	schedule, ok := s.loadSchedule(w, r, userID, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

func (s *apiServer) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	current, ok := s.loadSchedule(w, r, userID, true)
	if !ok {
		return
	}
	var updated schema.Schedule
	if !decodeBody(w, r, &updated) {
		return
	}
	// Identity and recipe binding are fixed at creation.
	updated.ID = current.ID
	updated.RecipeID = current.RecipeID
	saved, err := s.scheduler.Update(r.Context(), updated)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *apiServer) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	schedule, ok := s.loadSchedule(w, r, userID, true)
	if !ok {
		return
	}
	if err := s.scheduler.Delete(r.Context(), schedule.ID); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleEnableSchedule(w http.ResponseWriter, r *http.Request) {
	s.setScheduleEnabled(w, r, true)
}

func (s *apiServer) handleDisableSchedule(w http.ResponseWriter, r *http.Request) {
	s.setScheduleEnabled(w, r, false)
}

func (s *apiServer) setScheduleEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	schedule, ok := s.loadSchedule(w, r, userID, true)
	if !ok {
		return
	}
	updated, err := s.scheduler.SetEnabled(r.Context(), schedule.ID, enabled)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *apiServer) handleTriggerSchedule(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	schedule, ok := s.loadSchedule(w, r, userID, true)
	if !ok {
		return
	}
	// The scheduler's execution starter drives the new execution in
	// the background; nothing to spawn here.
	execution, err := s.scheduler.Trigger(r.Context(), schedule.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, execution)
}
