// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/slate-labs/slate/lib/schema"
	"github.com/slate-labs/slate/lib/servicetoken"
)

// internalAudience is the token audience internal handlers require.
// Tokens minted for other surfaces are rejected.
const internalAudience = "internal"

// internalAuth gates a handler behind a signed service token carried
// as "Authorization: Bearer <base64 token>". Without a verification
// key the internal surface is unavailable rather than open.
func (s *apiServer) internalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.verifyKey == nil {
			sendError(w, http.StatusServiceUnavailable, "internal API is not configured")
			return
		}
		header := r.Header.Get("Authorization")
		encoded, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || encoded == "" {
			sendError(w, http.StatusUnauthorized, "missing service token")
			return
		}
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			sendError(w, http.StatusUnauthorized, "malformed service token")
			return
		}
		token, err := servicetoken.VerifyForServiceAt(s.verifyKey, raw, internalAudience, s.clock.Now())
		if err != nil {
			s.logger.Warn("service token rejected",
				"path", r.URL.Path,
				"error", err,
			)
			sendError(w, http.StatusUnauthorized, "invalid service token")
			return
		}
		s.logger.Debug("internal request authorized",
			"path", r.URL.Path,
			"subject", token.Subject,
			"token_id", token.ID,
		)
		next(w, r)
	}
}

type internalArtifactRequest struct {
	StepID  string `json:"stepId"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// handleInternalArtifact lets sandbox workers attach output to an
// execution, typically the result of a run_agent step reporting back.
func (s *apiServer) handleInternalArtifact(w http.ResponseWriter, r *http.Request) {
	var req internalArtifactRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Type == "" || req.Name == "" {
		sendError(w, http.StatusBadRequest, "type and name are required")
		return
	}
	executionID := schema.ExecutionID(r.PathValue("id"))
	artifact, err := s.engine.AddArtifact(r.Context(), executionID, req.StepID, req.Type, req.Name, []byte(req.Content))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, artifact)
}

type internalEventRequest struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

// handleInternalEvent fans an external event out to every enabled
// schedule subscribed to it and reports the executions started.
func (s *apiServer) handleInternalEvent(w http.ResponseWriter, r *http.Request) {
	var req internalEventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		sendError(w, http.StatusBadRequest, "name is required")
		return
	}
	// Started executions are driven by the scheduler's execution
	// starter; this handler only reports what fired.
	executions, err := s.scheduler.EmitEvent(r.Context(), req.Name, req.Payload)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if executions == nil {
		executions = []schema.Execution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":      len(executions),
		"executions": executions,
	})
}
