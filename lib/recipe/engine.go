// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

// Package recipe runs declarative workflow definitions. The engine
// starts executions, interprets individual steps, and advances the
// cursor between them; it never runs a whole recipe synchronously.
// Callers (the scheduler, the REST layer) decide when each step runs.
package recipe

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zeebo/blake3"

	"github.com/slate-labs/slate/lib/clock"
	"github.com/slate-labs/slate/lib/sandbox"
	"github.com/slate-labs/slate/lib/schema"
)

// ErrConflict reports a state transition that the execution's current
// status does not admit, such as pausing an execution that is not
// running.
var ErrConflict = errors.New("recipe: state conflict")

// Store is the persistence surface the engine needs.
type Store interface {
	Recipe(ctx context.Context, id schema.RecipeID) (schema.Recipe, error)
	CreateExecution(ctx context.Context, execution schema.Execution) error
	Execution(ctx context.Context, id schema.ExecutionID) (schema.Execution, error)
	UpdateExecution(ctx context.Context, execution schema.Execution) error
	AddArtifact(ctx context.Context, artifact schema.Artifact) error
}

// AgentRunner starts agents in remote sandbox sessions. Satisfied by
// *sandbox.Client.
type AgentRunner interface {
	StartAgent(ctx context.Context, sessionID string, request sandbox.StartAgentRequest) (*sandbox.Agent, error)
}

// Config holds configuration for creating an Engine.
type Config struct {
	// Store persists executions and artifacts. Required.
	Store Store

	// Agents runs run_agent steps. Optional; run_agent steps fail
	// when nil.
	Agents AgentRunner

	// Clock drives wait steps. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives engine diagnostics. Nil means silent.
	Logger *slog.Logger
}

// Engine interprets recipes step by step.
type Engine struct {
	store  Store
	agents AgentRunner
	clock  clock.Clock
	logger *slog.Logger
}

// New creates an Engine. Panics if required configuration is missing.
func New(config Config) *Engine {
	if config.Store == nil {
		panic("recipe: Config.Store is required")
	}
	c := config.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		store:  config.Store,
		agents: config.Agents,
		clock:  c,
		logger: logger,
	}
}

// CreateExecution starts a new run of a recipe: it loads the recipe,
// points the cursor at the first step, and inserts a running row.
// No steps run here; step execution is driven separately through
// ExecuteStep and Advance.
func (e *Engine) CreateExecution(ctx context.Context, recipeID schema.RecipeID, executionContext map[string]any, triggeredBy schema.TriggerKind) (schema.Execution, error) {
	r, err := e.store.Recipe(ctx, recipeID)
	if err != nil {
		return schema.Execution{}, fmt.Errorf("loading recipe %s: %w", recipeID, err)
	}

	execution := schema.Execution{
		ID:            schema.NewExecutionID(),
		RecipeID:      recipeID,
		Status:        schema.ExecutionRunning,
		CurrentStepID: r.FirstStepID(),
		Context:       executionContext,
		TriggeredBy:   triggeredBy,
		StartedAt:     e.clock.Now().UTC(),
	}
	if err := e.store.CreateExecution(ctx, execution); err != nil {
		return schema.Execution{}, err
	}

	e.logger.Info("execution started",
		"execution_id", execution.ID,
		"recipe_id", recipeID,
		"triggered_by", triggeredBy,
	)
	return execution, nil
}

// StepResult is the outcome of interpreting a single step.
type StepResult struct {
	Success bool
	Output  map[string]any
	Error   string
}

// ExecuteStep interprets one step against an execution's context. It
// dispatches on the step type and returns the outcome; it does not
// move the execution's cursor. Advance applies the result.
func (e *Engine) ExecuteStep(ctx context.Context, execution schema.Execution, step schema.RecipeStep) StepResult {
	var result StepResult
	switch step.Type {
	case schema.StepRunAgent:
		result = e.runAgentStep(ctx, step)
	case schema.StepWait:
		result = e.waitStep(ctx, step)
	case schema.StepBranch:
		result = branchStep(execution, step)
	case schema.StepNotify:
		result = e.notifyStep(ctx, execution, step)
	case schema.StepHumanApproval:
		result = e.humanApprovalStep(ctx, execution, step)
	default:
		result = StepResult{Error: fmt.Sprintf("unknown step type %q", step.Type)}
	}

	if !result.Success {
		e.logger.Warn("step failed",
			"execution_id", execution.ID,
			"step_id", step.ID,
			"step_type", step.Type,
			"error", result.Error,
		)
	}
	return result
}

// Advance applies a step result to an execution: records the step's
// output in the context, then moves the cursor to the next step or
// finishes the execution. On failure the step's onError policy decides
// between halting (the default) and continuing. The execution is
// reloaded first because a step can change status out from under the
// caller (human approval pauses it); a non-running execution keeps its
// cursor so the pending step re-runs on resume. Advance persists the
// updated execution and returns it.
func (e *Engine) Advance(ctx context.Context, executionID schema.ExecutionID, step schema.RecipeStep, result StepResult) (schema.Execution, error) {
	execution, err := e.store.Execution(ctx, executionID)
	if err != nil {
		return schema.Execution{}, err
	}
	if execution.Status != schema.ExecutionRunning {
		// A human-approval step pauses the execution from inside
		// ExecuteStep. Record its output anyway so the re-run after
		// resume can see that approval was already requested.
		if execution.Status == schema.ExecutionPaused && len(result.Output) > 0 {
			if execution.Context == nil {
				execution.Context = make(map[string]any)
			}
			execution.Context[step.ID] = result.Output
			if err := e.store.UpdateExecution(ctx, execution); err != nil {
				return execution, err
			}
		}
		return execution, nil
	}

	if len(result.Output) > 0 {
		if execution.Context == nil {
			execution.Context = make(map[string]any)
		}
		execution.Context[step.ID] = result.Output
	}

	if !result.Success && step.OnError != schema.ErrorContinue {
		return e.CompleteExecution(ctx, execution.ID, result.Error)
	}

	r, err := e.store.Recipe(ctx, execution.RecipeID)
	if err != nil {
		return execution, fmt.Errorf("loading recipe %s: %w", execution.RecipeID, err)
	}

	nextID := step.NextStepID
	if override, ok := result.Output["nextStepId"].(string); ok && override != "" {
		nextID = override
	}
	if nextID == "" {
		if next := r.StepAfter(step.ID); next != nil {
			nextID = next.ID
		}
	}

	if nextID == "" {
		return e.CompleteExecution(ctx, execution.ID, "")
	}

	execution.CurrentStepID = nextID
	if err := e.store.UpdateExecution(ctx, execution); err != nil {
		return execution, err
	}
	return execution, nil
}

// PauseExecution moves a running execution to paused. Any other
// current status is ErrConflict.
func (e *Engine) PauseExecution(ctx context.Context, id schema.ExecutionID) (schema.Execution, error) {
	return e.transition(ctx, id, schema.ExecutionRunning, schema.ExecutionPaused)
}

// ResumeExecution moves a paused execution back to running. Any other
// current status is ErrConflict.
func (e *Engine) ResumeExecution(ctx context.Context, id schema.ExecutionID) (schema.Execution, error) {
	return e.transition(ctx, id, schema.ExecutionPaused, schema.ExecutionRunning)
}

func (e *Engine) transition(ctx context.Context, id schema.ExecutionID, from, to schema.ExecutionStatus) (schema.Execution, error) {
	execution, err := e.store.Execution(ctx, id)
	if err != nil {
		return schema.Execution{}, err
	}
	if execution.Status != from {
		return schema.Execution{}, fmt.Errorf("%w: execution %s is %s, not %s", ErrConflict, id, execution.Status, from)
	}
	execution.Status = to
	if err := e.store.UpdateExecution(ctx, execution); err != nil {
		return schema.Execution{}, err
	}
	return execution, nil
}

// CompleteExecution finishes an execution: completed when errMessage
// is empty, failed otherwise. Finishing an already-terminal execution
// is ErrConflict.
func (e *Engine) CompleteExecution(ctx context.Context, id schema.ExecutionID, errMessage string) (schema.Execution, error) {
	execution, err := e.store.Execution(ctx, id)
	if err != nil {
		return schema.Execution{}, err
	}
	if execution.Status.Terminal() {
		return schema.Execution{}, fmt.Errorf("%w: execution %s already %s", ErrConflict, id, execution.Status)
	}

	execution.Status = schema.ExecutionCompleted
	execution.Error = ""
	if errMessage != "" {
		execution.Status = schema.ExecutionFailed
		execution.Error = errMessage
	}
	execution.CurrentStepID = ""
	now := e.clock.Now().UTC()
	execution.CompletedAt = &now

	if err := e.store.UpdateExecution(ctx, execution); err != nil {
		return schema.Execution{}, err
	}

	e.logger.Info("execution finished",
		"execution_id", id,
		"status", execution.Status,
	)
	return execution, nil
}

// Run drives an execution until it stops being runnable: terminal,
// paused (a human approval step parks it), or out of steps. Each
// iteration interprets the current step and advances. Run is safe to
// call again after a resume; it picks up at the pending step.
func (e *Engine) Run(ctx context.Context, id schema.ExecutionID) (schema.Execution, error) {
	for {
		execution, err := e.store.Execution(ctx, id)
		if err != nil {
			return schema.Execution{}, err
		}
		if execution.Status != schema.ExecutionRunning {
			return execution, nil
		}
		if execution.CurrentStepID == "" {
			return e.CompleteExecution(ctx, id, "")
		}

		r, err := e.store.Recipe(ctx, execution.RecipeID)
		if err != nil {
			return execution, fmt.Errorf("loading recipe %s: %w", execution.RecipeID, err)
		}
		step := r.Step(execution.CurrentStepID)
		if step == nil {
			return e.CompleteExecution(ctx, id, fmt.Sprintf("unknown step %q", execution.CurrentStepID))
		}

		result := e.ExecuteStep(ctx, execution, *step)
		next, err := e.Advance(ctx, id, *step, result)
		if err != nil {
			return execution, err
		}
		// Paused (human approval) or terminal; stop driving.
		if next.Status != schema.ExecutionRunning {
			return next, nil
		}
		// A step routed back to itself would loop forever.
		if next.CurrentStepID == execution.CurrentStepID {
			return e.CompleteExecution(ctx, id, fmt.Sprintf("step %q did not advance", step.ID))
		}
		if ctx.Err() != nil {
			return next, ctx.Err()
		}
	}
}

// AddArtifact appends output to an execution. The content hash is
// computed here so that stored artifacts are verifiable; artifacts are
// never mutated after insert.
func (e *Engine) AddArtifact(ctx context.Context, executionID schema.ExecutionID, stepID, artifactType, name string, content []byte) (schema.Artifact, error) {
	if _, err := e.store.Execution(ctx, executionID); err != nil {
		return schema.Artifact{}, err
	}

	sum := blake3.Sum256(content)
	artifact := schema.Artifact{
		ID:          schema.NewArtifactID(),
		ExecutionID: executionID,
		StepID:      stepID,
		Type:        artifactType,
		Name:        name,
		Content:     content,
		ContentHash: hex.EncodeToString(sum[:]),
		CreatedAt:   e.clock.Now().UTC(),
	}
	if err := e.store.AddArtifact(ctx, artifact); err != nil {
		return schema.Artifact{}, err
	}
	return artifact, nil
}
