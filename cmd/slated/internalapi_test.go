// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slate-labs/slate/lib/schema"
	"github.com/slate-labs/slate/lib/servicetoken"
)

// internalRequest performs a request against the internal surface with
// the given Authorization header value.
func (ts *testServer) internalRequest(t *testing.T, path, authorization string, body any) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("encoding request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	recorder := httptest.NewRecorder()
	ts.handler.ServeHTTP(recorder, req)
	return recorder
}

// mintToken issues a token signed with the fixture's private key.
func (ts *testServer) mintToken(t *testing.T, audience string, ttl time.Duration) string {
	t.Helper()
	now := ts.clock.Now()
	raw, err := servicetoken.Mint(ts.signKey, &servicetoken.Token{
		Subject:   "test-worker",
		Audience:  audience,
		ID:        ulid.Make().String(),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})
	if err != nil {
		t.Fatalf("minting token: %v", err)
	}
	return "Bearer " + base64.StdEncoding.EncodeToString(raw)
}

func TestInternalAuthRejections(t *testing.T) {
	ts := newTestServer(t)
	path := "/internal/events"
	body := map[string]any{"name": "push"}

	tests := []struct {
		name          string
		authorization string
	}{
		{name: "missing header", authorization: ""},
		{name: "not bearer", authorization: "Basic abc"},
		{name: "not base64", authorization: "Bearer %%%"},
		{name: "unsigned garbage", authorization: "Bearer " + base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 80))},
		{name: "wrong audience", authorization: ts.mintToken(t, "sandbox", time.Hour)},
		{name: "expired", authorization: ts.mintToken(t, internalAudience, -time.Minute)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			recorder := ts.internalRequest(t, path, test.authorization, body)
			requireStatus(t, recorder, http.StatusUnauthorized)
		})
	}
}

func TestInternalSurfaceUnavailableWithoutKey(t *testing.T) {
	ts := newTestServer(t)
	ts.api.verifyKey = nil
	recorder := ts.internalRequest(t, "/internal/events", ts.mintToken(t, internalAudience, time.Hour), map[string]any{"name": "push"})
	requireStatus(t, recorder, http.StatusServiceUnavailable)
}

func TestInternalArtifact(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.createRecipe(t, "alice", noteRecipeBody("agent work", ""))
	started := ts.request(t, http.MethodPost, "/recipes/"+string(rec.ID)+"/execute", "alice", nil)
	requireStatus(t, started, http.StatusCreated)
	execution := decodeResponse[schema.Execution](t, started)
	ts.waitForExecutionStatus(t, execution.ID, schema.ExecutionCompleted)

	token := ts.mintToken(t, internalAudience, time.Hour)
	recorder := ts.internalRequest(t, "/internal/executions/"+string(execution.ID)+"/artifacts", token, map[string]any{
		"stepId":  "announce",
		"type":    "agent_output",
		"name":    "result.txt",
		"content": "all green",
	})
	requireStatus(t, recorder, http.StatusCreated)
	artifact := decodeResponse[schema.Artifact](t, recorder)
	if artifact.ContentHash == "" {
		t.Error("artifact has no content hash")
	}

	artifacts := decodeResponse[[]schema.Artifact](t, ts.request(t, http.MethodGet, "/executions/"+string(execution.ID)+"/artifacts", "alice", nil))
	if len(artifacts) != 2 {
		t.Errorf("got %d artifacts, want the notify output plus the posted one", len(artifacts))
	}
}

func TestInternalArtifactUnknownExecution(t *testing.T) {
	ts := newTestServer(t)
	token := ts.mintToken(t, internalAudience, time.Hour)
	recorder := ts.internalRequest(t, "/internal/executions/nonexistent/artifacts", token, map[string]any{
		"type": "agent_output",
		"name": "result.txt",
	})
	requireStatus(t, recorder, http.StatusNotFound)
}

func TestInternalEventFansOut(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.createRecipe(t, "alice", noteRecipeBody("on push", ""))
	ts.createSchedule(t, "alice", map[string]any{
		"recipeId":     rec.ID,
		"name":         "on push",
		"eventTrigger": "push",
		"enabled":      true,
	})
	// A schedule for a different event must not fire.
	ts.createSchedule(t, "alice", map[string]any{
		"recipeId":     rec.ID,
		"name":         "on merge",
		"eventTrigger": "merge",
		"enabled":      true,
	})

	token := ts.mintToken(t, internalAudience, time.Hour)
	recorder := ts.internalRequest(t, "/internal/events", token, map[string]any{
		"name":    "push",
		"payload": map[string]any{"branch": "main"},
	})
	requireStatus(t, recorder, http.StatusOK)

	var response struct {
		Count      int                `json:"count"`
		Executions []schema.Execution `json:"executions"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if response.Count != 1 {
		t.Fatalf("count = %d, want 1", response.Count)
	}
	if response.Executions[0].TriggeredBy != schema.TriggerEvent {
		t.Errorf("triggeredBy = %s, want event", response.Executions[0].TriggeredBy)
	}
}
