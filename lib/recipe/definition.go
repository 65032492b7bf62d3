// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package recipe

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/slate-labs/slate/lib/schema"
)

// ParseDefinition decodes a recipe definition. Definitions are JSON
// with comments and trailing commas allowed, since operators write
// them by hand. The result is validated; a fresh id is assigned when
// the definition carries none.
func ParseDefinition(data []byte) (schema.Recipe, error) {
	var r schema.Recipe
	if err := json.Unmarshal(jsonc.ToJSON(data), &r); err != nil {
		return schema.Recipe{}, fmt.Errorf("parsing recipe definition: %w", err)
	}
	if r.ID == "" {
		r.ID = schema.NewRecipeID()
	}
	if err := r.Validate(); err != nil {
		return schema.Recipe{}, err
	}
	return r, nil
}

// LoadDefinition reads and parses a recipe definition file.
func LoadDefinition(path string) (schema.Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schema.Recipe{}, fmt.Errorf("reading recipe definition: %w", err)
	}
	return ParseDefinition(data)
}
