// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/slate-labs/slate/lib/schema"
)

// CreateRecipe inserts a recipe. Steps are stored as a JSON array.
func (s *Store) CreateRecipe(ctx context.Context, recipe schema.Recipe) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: create recipe: %w", err)
	}
	defer s.pool.Put(conn)

	steps, err := marshalSteps(recipe.Steps)
	if err != nil {
		return err
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO recipes (id, dashboard_id, name, description, steps)
		 VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				string(recipe.ID),
				string(recipe.DashboardID),
				recipe.Name,
				recipe.Description,
				steps,
			},
		})
	if err != nil {
		return fmt.Errorf("store: insert recipe %s: %w", recipe.ID, err)
	}
	return nil
}

// Recipe returns the recipe with the given id, or ErrNotFound.
func (s *Store) Recipe(ctx context.Context, id schema.RecipeID) (schema.Recipe, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return schema.Recipe{}, fmt.Errorf("store: recipe: %w", err)
	}
	defer s.pool.Put(conn)

	var recipe schema.Recipe
	found := false
	err = sqlitex.Execute(conn,
		recipeColumns+` WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(id)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				scanned, err := scanRecipe(stmt)
				if err != nil {
					return err
				}
				recipe = scanned
				found = true
				return nil
			},
		})
	if err != nil {
		return schema.Recipe{}, fmt.Errorf("store: recipe %s: %w", id, err)
	}
	if !found {
		return schema.Recipe{}, fmt.Errorf("store: recipe %s: %w", id, ErrNotFound)
	}
	return recipe, nil
}

// RecipesVisibleTo returns global recipes plus recipes scoped to any
// of the given dashboards, ordered by name. Pass no dashboards to get
// only global recipes.
func (s *Store) RecipesVisibleTo(ctx context.Context, dashboardIDs []schema.DashboardID) ([]schema.Recipe, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: recipes: %w", err)
	}
	defer s.pool.Put(conn)

	query := recipeColumns + ` WHERE dashboard_id = ''`
	args := []any{}
	for _, id := range dashboardIDs {
		query += ` OR dashboard_id = ?`
		args = append(args, string(id))
	}
	query += ` ORDER BY name`

	var recipes []schema.Recipe
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			recipe, err := scanRecipe(stmt)
			if err != nil {
				return err
			}
			recipes = append(recipes, recipe)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: recipes: %w", err)
	}
	return recipes, nil
}

// UpdateRecipe rewrites a recipe's mutable fields. Returns ErrNotFound
// if the recipe does not exist.
func (s *Store) UpdateRecipe(ctx context.Context, recipe schema.Recipe) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: update recipe: %w", err)
	}
	defer s.pool.Put(conn)

	steps, err := marshalSteps(recipe.Steps)
	if err != nil {
		return err
	}

	err = sqlitex.Execute(conn,
		`UPDATE recipes SET name = ?, description = ?, steps = ? WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{recipe.Name, recipe.Description, steps, string(recipe.ID)},
		})
	if err != nil {
		return fmt.Errorf("store: update recipe %s: %w", recipe.ID, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("store: update recipe %s: %w", recipe.ID, ErrNotFound)
	}
	return nil
}

// DeleteRecipe removes a recipe. Executions and schedules cascade.
// Returns ErrNotFound if the recipe does not exist.
func (s *Store) DeleteRecipe(ctx context.Context, id schema.RecipeID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: delete recipe: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM recipes WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{string(id)}})
	if err != nil {
		return fmt.Errorf("store: delete recipe %s: %w", id, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("store: delete recipe %s: %w", id, ErrNotFound)
	}
	return nil
}

const recipeColumns = `SELECT id, dashboard_id, name, description, steps FROM recipes`

func marshalSteps(steps []schema.RecipeStep) (string, error) {
	if steps == nil {
		steps = []schema.RecipeStep{}
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return "", fmt.Errorf("store: marshal recipe steps: %w", err)
	}
	return string(data), nil
}

func scanRecipe(stmt *sqlite.Stmt) (schema.Recipe, error) {
	recipe := schema.Recipe{
		ID:          schema.RecipeID(stmt.ColumnText(0)),
		DashboardID: schema.DashboardID(stmt.ColumnText(1)),
		Name:        stmt.ColumnText(2),
		Description: stmt.ColumnText(3),
	}
	if err := json.Unmarshal([]byte(stmt.ColumnText(4)), &recipe.Steps); err != nil {
		return recipe, fmt.Errorf("store: unmarshal recipe steps: %w", err)
	}
	return recipe, nil
}
