package freetext

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// recipeSchemaJSON constrains the model's completion. Optionals accept null
// because models frequently emit null instead of omitting a field.
const recipeSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "ingredients", "instructions"],
  "properties": {
    "name": {"type": "string"},
    "ingredients": {"type": "array", "items": {"type": "string"}},
    "instructions": {"type": "array", "items": {"type": "string"}},
    "prepTimeMinutes": {"type": ["integer", "null"], "minimum": 0},
    "cookTimeMinutes": {"type": ["integer", "null"], "minimum": 0},
    "servings": {"type": ["integer", "null"], "minimum": 0},
    "notes": {"type": ["string", "null"]}
  }
}`

var recipeSchema = jsonschema.MustCompileString("recipe.schema.json", recipeSchemaJSON)
