// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/slate-labs/slate/lib/schema"
)

// CreateExecution inserts an execution row.
func (s *Store) CreateExecution(ctx context.Context, execution schema.Execution) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: create execution: %w", err)
	}
	defer s.pool.Put(conn)

	contextJSON, err := jsonText(execution.Context)
	if err != nil {
		return err
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO executions (id, recipe_id, status, current_step_id, context, triggered_by, started_at, completed_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				string(execution.ID),
				string(execution.RecipeID),
				string(execution.Status),
				execution.CurrentStepID,
				contextJSON,
				string(execution.TriggeredBy),
				unixMillis(execution.StartedAt),
				nullableMillis(execution.CompletedAt),
				execution.Error,
			},
		})
	if err != nil {
		return fmt.Errorf("store: insert execution %s: %w", execution.ID, err)
	}
	return nil
}

// Execution returns the execution with the given id, or ErrNotFound.
func (s *Store) Execution(ctx context.Context, id schema.ExecutionID) (schema.Execution, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return schema.Execution{}, fmt.Errorf("store: execution: %w", err)
	}
	defer s.pool.Put(conn)

	var execution schema.Execution
	found := false
	err = sqlitex.Execute(conn,
		executionColumns+` WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(id)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				scanned, err := scanExecution(stmt)
				if err != nil {
					return err
				}
				execution = scanned
				found = true
				return nil
			},
		})
	if err != nil {
		return schema.Execution{}, fmt.Errorf("store: execution %s: %w", id, err)
	}
	if !found {
		return schema.Execution{}, fmt.Errorf("store: execution %s: %w", id, ErrNotFound)
	}
	return execution, nil
}

// UpdateExecution rewrites an execution's mutable fields. Returns
// ErrNotFound if the execution does not exist.
func (s *Store) UpdateExecution(ctx context.Context, execution schema.Execution) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: update execution: %w", err)
	}
	defer s.pool.Put(conn)

	contextJSON, err := jsonText(execution.Context)
	if err != nil {
		return err
	}

	err = sqlitex.Execute(conn,
		`UPDATE executions SET status = ?, current_step_id = ?, context = ?, completed_at = ?, error = ?
		 WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{
				string(execution.Status),
				execution.CurrentStepID,
				contextJSON,
				nullableMillis(execution.CompletedAt),
				execution.Error,
				string(execution.ID),
			},
		})
	if err != nil {
		return fmt.Errorf("store: update execution %s: %w", execution.ID, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("store: update execution %s: %w", execution.ID, ErrNotFound)
	}
	return nil
}

// ExecutionsForRecipe returns executions of a recipe, newest first.
func (s *Store) ExecutionsForRecipe(ctx context.Context, recipeID schema.RecipeID) ([]schema.Execution, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: executions for recipe: %w", err)
	}
	defer s.pool.Put(conn)

	var executions []schema.Execution
	err = sqlitex.Execute(conn,
		executionColumns+` WHERE recipe_id = ? ORDER BY started_at DESC`,
		&sqlitex.ExecOptions{
			Args: []any{string(recipeID)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				execution, err := scanExecution(stmt)
				if err != nil {
					return err
				}
				executions = append(executions, execution)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: executions for recipe %s: %w", recipeID, err)
	}
	return executions, nil
}

// AddArtifact appends an artifact to an execution. Artifacts are
// immutable once written.
func (s *Store) AddArtifact(ctx context.Context, artifact schema.Artifact) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: add artifact: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO artifacts (id, execution_id, step_id, type, name, content, content_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				string(artifact.ID),
				string(artifact.ExecutionID),
				artifact.StepID,
				artifact.Type,
				artifact.Name,
				artifact.Content,
				artifact.ContentHash,
				unixMillis(artifact.CreatedAt),
			},
		})
	if err != nil {
		return fmt.Errorf("store: insert artifact %s: %w", artifact.ID, err)
	}
	return nil
}

// ArtifactsForExecution returns an execution's artifacts in insertion
// order.
func (s *Store) ArtifactsForExecution(ctx context.Context, executionID schema.ExecutionID) ([]schema.Artifact, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: artifacts: %w", err)
	}
	defer s.pool.Put(conn)

	var artifacts []schema.Artifact
	err = sqlitex.Execute(conn,
		`SELECT id, execution_id, step_id, type, name, content, content_hash, created_at
		 FROM artifacts WHERE execution_id = ? ORDER BY created_at, id`,
		&sqlitex.ExecOptions{
			Args: []any{string(executionID)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				artifact := schema.Artifact{
					ID:          schema.ArtifactID(stmt.ColumnText(0)),
					ExecutionID: schema.ExecutionID(stmt.ColumnText(1)),
					StepID:      stmt.ColumnText(2),
					Type:        stmt.ColumnText(3),
					Name:        stmt.ColumnText(4),
					ContentHash: stmt.ColumnText(6),
					CreatedAt:   millisTime(stmt.ColumnInt64(7)),
				}
				if !stmt.ColumnIsNull(5) {
					content := make([]byte, stmt.ColumnLen(5))
					stmt.ColumnBytes(5, content)
					artifact.Content = content
				}
				artifacts = append(artifacts, artifact)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: artifacts for execution %s: %w", executionID, err)
	}
	return artifacts, nil
}

const executionColumns = `SELECT id, recipe_id, status, current_step_id, context, triggered_by, started_at, completed_at, error FROM executions`

func scanExecution(stmt *sqlite.Stmt) (schema.Execution, error) {
	execution := schema.Execution{
		ID:            schema.ExecutionID(stmt.ColumnText(0)),
		RecipeID:      schema.RecipeID(stmt.ColumnText(1)),
		Status:        schema.ExecutionStatus(stmt.ColumnText(2)),
		CurrentStepID: stmt.ColumnText(3),
		TriggeredBy:   schema.TriggerKind(stmt.ColumnText(5)),
		StartedAt:     millisTime(stmt.ColumnInt64(6)),
		CompletedAt:   columnTimePtr(stmt, 7),
		Error:         stmt.ColumnText(8),
	}
	if err := columnJSON(stmt, 4, &execution.Context); err != nil {
		return execution, err
	}
	return execution, nil
}
