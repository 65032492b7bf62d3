// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// ExecutionStatus is the execution lifecycle state machine:
//
//	running ⇄ paused
//	running → completed | failed
//
// "completed" and "failed" are terminal.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionPaused    ExecutionStatus = "paused"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// TriggerKind records what started an execution.
type TriggerKind string

const (
	TriggerManual TriggerKind = "manual"
	TriggerCron   TriggerKind = "cron"
	TriggerEvent  TriggerKind = "event"
)

// Execution is one run of a recipe. Context carries variables visible
// to branch conditions and step interpreters; CurrentStepID is empty
// for executions of empty recipes and after the last step completes.
type Execution struct {
	ID            ExecutionID     `json:"id"`
	RecipeID      RecipeID        `json:"recipeId"`
	Status        ExecutionStatus `json:"status"`
	CurrentStepID string          `json:"currentStepId,omitempty"`
	Context       map[string]any  `json:"context,omitempty"`
	TriggeredBy   TriggerKind     `json:"triggeredBy"`
	StartedAt     time.Time       `json:"startedAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Artifact is output captured during an execution step. Artifacts are
// immutable and append-only; ContentHash is the blake3 hex digest of
// Content, recorded at insert time.
type Artifact struct {
	ID          ArtifactID  `json:"id"`
	ExecutionID ExecutionID `json:"executionId"`
	StepID      string      `json:"stepId,omitempty"`
	Type        string      `json:"type"`
	Name        string      `json:"name"`
	Content     []byte      `json:"content,omitempty"`
	ContentHash string      `json:"contentHash"`
	CreatedAt   time.Time   `json:"createdAt"`
}
