// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/slate-labs/slate/lib/recipe"
	"github.com/slate-labs/slate/lib/schema"
	"github.com/slate-labs/slate/lib/store"
)

// recipeAccess checks whether a user may see or mutate a recipe. A
// recipe without a dashboard is global: any authenticated user may use
// it. A dashboard-scoped recipe follows the dashboard's membership,
// with mutations requiring an editing role. Failures are written to w
// as the uniform 404.
func (s *apiServer) recipeAccess(w http.ResponseWriter, r *http.Request, rec schema.Recipe, userID schema.UserID, needEdit bool) bool {
	if rec.DashboardID == "" {
		return true
	}
	_, ok := s.requireRole(w, r, rec.DashboardID, userID, needEdit)
	return ok
}

// loadRecipe fetches a recipe and applies the access check, writing
// the error response itself on failure.
func (s *apiServer) loadRecipe(w http.ResponseWriter, r *http.Request, userID schema.UserID, needEdit bool) (schema.Recipe, bool) {
	rec, err := s.store.Recipe(r.Context(), schema.RecipeID(r.PathValue("id")))
	if err != nil {
		s.respondError(w, r, err)
		return schema.Recipe{}, false
	}
	if !s.recipeAccess(w, r, rec, userID, needEdit) {
		return schema.Recipe{}, false
	}
	return rec, true
}

func (s *apiServer) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	dashboards, err := s.store.DashboardsForUser(r.Context(), userID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	ids := make([]schema.DashboardID, len(dashboards))
	for i, d := range dashboards {
		ids[i] = d.ID
	}
	recipes, err := s.store.RecipesVisibleTo(r.Context(), ids)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if recipes == nil {
		recipes = []schema.Recipe{}
	}
	writeJSON(w, http.StatusOK, recipes)
}

func (s *apiServer) handleCreateRecipe(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		sendError(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return
	}
	rec, err := recipe.ParseDefinition(body)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if rec.DashboardID != "" {
		if _, ok := s.requireRole(w, r, rec.DashboardID, userID, true); !ok {
			return
		}
	}
	if err := s.store.CreateRecipe(r.Context(), rec); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *apiServer) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	rec, ok := s.loadRecipe(w, r, userID, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *apiServer) handleUpdateRecipe(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	current, ok := s.loadRecipe(w, r, userID, true)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		sendError(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return
	}
	updated, err := recipe.ParseDefinition(body)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Identity and ownership are fixed at creation; the body only
	// supplies the mutable definition.
	updated.ID = current.ID
	updated.DashboardID = current.DashboardID
	if err := s.store.UpdateRecipe(r.Context(), updated); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *apiServer) handleDeleteRecipe(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	rec, ok := s.loadRecipe(w, r, userID, true)
	if !ok {
		return
	}
	if err := s.store.DeleteRecipe(r.Context(), rec.ID); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type executeRequest struct {
	Context map[string]any `json:"context"`
}

func (s *apiServer) handleExecuteRecipe(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	rec, ok := s.loadRecipe(w, r, userID, true)
	if !ok {
		return
	}
	var req executeRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}
	execution, err := s.engine.CreateExecution(r.Context(), rec.ID, req.Context, schema.TriggerManual)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	go s.runExecution(execution.ID)
	writeJSON(w, http.StatusCreated, execution)
}

// runExecution drives an execution to its next stopping point in the
// background. The request that started it has already returned, so the
// driver runs on its own context.
func (s *apiServer) runExecution(id schema.ExecutionID) {
	if _, err := s.engine.Run(context.Background(), id); err != nil {
		s.logger.Error("execution driver failed",
			"execution_id", id,
			"error", err,
		)
	}
}

func (s *apiServer) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	rec, ok := s.loadRecipe(w, r, userID, false)
	if !ok {
		return
	}
	executions, err := s.store.ExecutionsForRecipe(r.Context(), rec.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if executions == nil {
		executions = []schema.Execution{}
	}
	writeJSON(w, http.StatusOK, executions)
}

// loadExecution fetches an execution and applies the owning recipe's
// access rules.
func (s *apiServer) loadExecution(w http.ResponseWriter, r *http.Request, userID schema.UserID, needEdit bool) (schema.Execution, bool) {
	execution, err := s.store.Execution(r.Context(), schema.ExecutionID(r.PathValue("id")))
	if err != nil {
		s.respondError(w, r, err)
		return schema.Execution{}, false
	}
	rec, err := s.store.Recipe(r.Context(), execution.RecipeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Recipe deleted out from under its executions; treat the
			// execution as orphaned but still reachable.
			return execution, true
		}
		s.internalError(w, r, err)
		return schema.Execution{}, false
	}
	if !s.recipeAccess(w, r, rec, userID, needEdit) {
		return schema.Execution{}, false
	}
	return execution, true
}

func (s *apiServer) handlePauseExecution(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	execution, ok := s.loadExecution(w, r, userID, true)
	if !ok {
		return
	}
	paused, err := s.engine.PauseExecution(r.Context(), execution.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paused)
}

func (s *apiServer) handleResumeExecution(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	execution, ok := s.loadExecution(w, r, userID, true)
	if !ok {
		return
	}
	resumed, err := s.engine.ResumeExecution(r.Context(), execution.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	go s.runExecution(resumed.ID)
	writeJSON(w, http.StatusOK, resumed)
}

func (s *apiServer) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	execution, ok := s.loadExecution(w, r, userID, false)
	if !ok {
		return
	}
	artifacts, err := s.store.ArtifactsForExecution(r.Context(), execution.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if artifacts == nil {
		artifacts = []schema.Artifact{}
	}
	writeJSON(w, http.StatusOK, artifacts)
}
