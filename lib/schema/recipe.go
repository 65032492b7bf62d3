// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// StepType is the closed set of recipe step kinds the engine can
// interpret. Anything else is rejected at validation time.
type StepType string

const (
	// StepRunAgent starts an agent in a sandbox session and records
	// its handle in the step output.
	StepRunAgent StepType = "run_agent"

	// StepWait delays execution for a configured duration, capped by
	// the engine.
	StepWait StepType = "wait"

	// StepBranch evaluates a condition against the execution context
	// and selects the next step accordingly.
	StepBranch StepType = "branch"

	// StepNotify records a notification for dashboard collaborators.
	StepNotify StepType = "notify"

	// StepHumanApproval pauses the execution until a human resumes it.
	StepHumanApproval StepType = "human_approval"
)

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	switch t {
	case StepRunAgent, StepWait, StepBranch, StepNotify, StepHumanApproval:
		return true
	}
	return false
}

// ErrorPolicy controls how the caller advances past a failed step.
type ErrorPolicy string

const (
	// ErrorHalt fails the execution on step failure. The zero value
	// behaves as halt.
	ErrorHalt ErrorPolicy = "halt"

	// ErrorContinue advances to the next step despite the failure.
	ErrorContinue ErrorPolicy = "continue"
)

// RecipeStep is one step in a recipe's ordered sequence. NextStepID
// overrides the default "next in sequence" advance; branch steps set
// it dynamically from their condition result.
type RecipeStep struct {
	ID         string         `json:"id"`
	Type       StepType       `json:"type"`
	Name       string         `json:"name"`
	Config     map[string]any `json:"config,omitempty"`
	NextStepID string         `json:"nextStepId,omitempty"`
	OnError    ErrorPolicy    `json:"onError,omitempty"`
}

// Recipe is a declarative ordered workflow definition. A recipe with
// no DashboardID is globally accessible; otherwise access is gated by
// membership on the owning dashboard.
type Recipe struct {
	ID          RecipeID     `json:"id"`
	DashboardID DashboardID  `json:"dashboardId,omitempty"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Steps       []RecipeStep `json:"steps"`
}

// Validate checks structural integrity: step types known, step IDs
// present and unique, nextStepId references resolvable.
func (r Recipe) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("recipe: name is required")
	}
	ids := make(map[string]struct{}, len(r.Steps))
	for i, step := range r.Steps {
		if step.ID == "" {
			return fmt.Errorf("recipe: step %d has no id", i)
		}
		if _, dup := ids[step.ID]; dup {
			return fmt.Errorf("recipe: duplicate step id %q", step.ID)
		}
		ids[step.ID] = struct{}{}
		if !step.Type.Valid() {
			return fmt.Errorf("recipe: step %q has unknown type %q", step.ID, step.Type)
		}
		if step.Name == "" {
			return fmt.Errorf("recipe: step %q has no name", step.ID)
		}
		if step.OnError != "" && step.OnError != ErrorHalt && step.OnError != ErrorContinue {
			return fmt.Errorf("recipe: step %q has unknown onError policy %q", step.ID, step.OnError)
		}
	}
	for _, step := range r.Steps {
		if step.NextStepID == "" {
			continue
		}
		if _, ok := ids[step.NextStepID]; !ok {
			return fmt.Errorf("recipe: step %q references unknown next step %q", step.ID, step.NextStepID)
		}
	}
	return nil
}

// FirstStepID returns the id of the first step, or "" for an empty
// recipe.
func (r Recipe) FirstStepID() string {
	if len(r.Steps) == 0 {
		return ""
	}
	return r.Steps[0].ID
}

// Step returns the step with the given id, or nil.
func (r Recipe) Step(id string) *RecipeStep {
	for i := range r.Steps {
		if r.Steps[i].ID == id {
			return &r.Steps[i]
		}
	}
	return nil
}

// StepAfter returns the step following the one with the given id in
// sequence order, or nil if id is last or unknown.
func (r Recipe) StepAfter(id string) *RecipeStep {
	for i := range r.Steps {
		if r.Steps[i].ID == id && i+1 < len(r.Steps) {
			return &r.Steps[i+1]
		}
	}
	return nil
}
