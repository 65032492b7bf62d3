// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package recipe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/slate-labs/slate/lib/sandbox"
	"github.com/slate-labs/slate/lib/schema"
)

// maxWait caps wait steps so a mistyped duration cannot park an
// execution for days.
const maxWait = 5 * time.Minute

func failure(format string, args ...any) StepResult {
	return StepResult{Error: fmt.Sprintf(format, args...)}
}

// runAgentStep starts an agent in the sandbox session named by the
// step config and records its handle in the step output.
func (e *Engine) runAgentStep(ctx context.Context, step schema.RecipeStep) StepResult {
	if e.agents == nil {
		return failure("no agent runner configured")
	}
	sessionID, _ := step.Config["sessionId"].(string)
	if sessionID == "" {
		return failure("run_agent step %q: config.sessionId is required", step.ID)
	}
	prompt, _ := step.Config["prompt"].(string)
	if prompt == "" {
		return failure("run_agent step %q: config.prompt is required", step.ID)
	}
	agentConfig, _ := step.Config["agentConfig"].(map[string]any)

	agent, err := e.agents.StartAgent(ctx, sessionID, sandbox.StartAgentRequest{
		Prompt: prompt,
		Config: agentConfig,
	})
	if err != nil {
		return failure("starting agent: %v", err)
	}
	return StepResult{
		Success: true,
		Output: map[string]any{
			"agentId":   agent.ID,
			"sessionId": agent.SessionID,
			"status":    agent.Status,
		},
	}
}

// waitStep delays for config.seconds, capped at maxWait. Context
// cancellation aborts the wait and fails the step.
func (e *Engine) waitStep(ctx context.Context, step schema.RecipeStep) StepResult {
	seconds, ok := step.Config["seconds"].(float64)
	if !ok || seconds < 0 {
		return failure("wait step %q: config.seconds must be a non-negative number", step.ID)
	}
	delay := time.Duration(seconds * float64(time.Second))
	if delay > maxWait {
		delay = maxWait
	}

	select {
	case <-e.clock.After(delay):
		return StepResult{Success: true, Output: map[string]any{"waited": delay.String()}}
	case <-ctx.Done():
		return failure("wait interrupted: %v", ctx.Err())
	}
}

// branchStep evaluates a condition against the execution context and
// selects the next step. The selected id lands in the output as
// nextStepId, which Advance honors over the step's static routing.
func branchStep(execution schema.Execution, step schema.RecipeStep) StepResult {
	field, _ := step.Config["field"].(string)
	operator, _ := step.Config["operator"].(string)
	if field == "" || operator == "" {
		return failure("branch step %q: config.field and config.operator are required", step.ID)
	}
	thenStep, _ := step.Config["then"].(string)
	elseStep, _ := step.Config["else"].(string)

	value, present := lookupField(execution.Context, field)
	matched, err := evaluateCondition(operator, value, present, step.Config["value"])
	if err != nil {
		return failure("branch step %q: %v", step.ID, err)
	}

	next := elseStep
	if matched {
		next = thenStep
	}
	return StepResult{
		Success: true,
		Output:  map[string]any{"matched": matched, "nextStepId": next},
	}
}

// lookupField resolves a dotted path against the execution context, so
// branch conditions can inspect prior step output ("stepId.agentId").
func lookupField(executionContext map[string]any, path string) (any, bool) {
	var value any = executionContext
	for _, part := range strings.Split(path, ".") {
		object, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok = object[part]
		if !ok {
			return nil, false
		}
	}
	return value, true
}

func evaluateCondition(operator string, value any, present bool, expected any) (bool, error) {
	switch operator {
	case "exists":
		return present, nil
	case "equals":
		return present && fmt.Sprint(value) == fmt.Sprint(expected), nil
	case "not_equals":
		return !present || fmt.Sprint(value) != fmt.Sprint(expected), nil
	case "contains":
		if !present {
			return false, nil
		}
		return strings.Contains(fmt.Sprint(value), fmt.Sprint(expected)), nil
	case "greater_than", "less_than":
		actual, ok := value.(float64)
		threshold, tok := expected.(float64)
		if !present || !ok || !tok {
			return false, nil
		}
		if operator == "greater_than" {
			return actual > threshold, nil
		}
		return actual < threshold, nil
	default:
		return false, fmt.Errorf("unknown operator %q", operator)
	}
}

// notifyStep records a notification artifact on the execution so
// collaborators can see it in the execution's output feed.
func (e *Engine) notifyStep(ctx context.Context, execution schema.Execution, step schema.RecipeStep) StepResult {
	message, _ := step.Config["message"].(string)
	if message == "" {
		return failure("notify step %q: config.message is required", step.ID)
	}
	level, _ := step.Config["level"].(string)
	if level == "" {
		level = "info"
	}

	content, err := json.Marshal(map[string]string{"message": message, "level": level})
	if err != nil {
		return failure("encoding notification: %v", err)
	}
	if _, err := e.AddArtifact(ctx, execution.ID, step.ID, "notification", step.Name, content); err != nil {
		return failure("recording notification: %v", err)
	}
	return StepResult{Success: true, Output: map[string]any{"message": message}}
}

// humanApprovalStep parks the execution in paused until someone
// resumes it. The step itself succeeds; progress stops because the
// execution is no longer running. When the execution is resumed the
// step runs again, finds its own marker in the context, and treats the
// resume as the approval.
func (e *Engine) humanApprovalStep(ctx context.Context, execution schema.Execution, step schema.RecipeStep) StepResult {
	if prior, ok := execution.Context[step.ID].(map[string]any); ok {
		if awaiting, _ := prior["awaitingApproval"].(bool); awaiting {
			return StepResult{Success: true, Output: map[string]any{"approved": true}}
		}
	}
	if _, err := e.PauseExecution(ctx, execution.ID); err != nil {
		return failure("pausing for approval: %v", err)
	}
	return StepResult{Success: true, Output: map[string]any{"awaitingApproval": true}}
}
