package sandbox

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zeusync/arena/internal/arena/entity"
)

const actionSchemaText = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "move":   { "enum": ["forward", "backward", null] },
    "rotate": { "enum": [-1, 0, 1] },
    "shoot":  { "type": "boolean" },
    "taunt":  { "type": "string", "maxLength": 140 }
  }
}`

// The compiled schema is immutable and safe to share between matches.
var actionSchema = jsonschema.MustCompileString("action.schema.json", actionSchemaText)

type wireAction struct {
	Move   *string `json:"move"`
	Rotate int     `json:"rotate"`
	Shoot  bool    `json:"shoot"`
	Taunt  string  `json:"taunt"`
}

// parseAction validates an exported interpreter value and converts it.
// nil (undefined or null in script) is a valid no-op.
func parseAction(v any) (entity.Action, error) {
	if v == nil {
		return entity.Noop, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return entity.Noop, fmt.Errorf("return value is not plain data: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return entity.Noop, err
	}
	if err := actionSchema.Validate(doc); err != nil {
		return entity.Noop, err
	}

	var w wireAction
	if err := json.Unmarshal(raw, &w); err != nil {
		return entity.Noop, err
	}
	a := entity.Action{Rotate: w.Rotate, Shoot: w.Shoot, Taunt: w.Taunt}
	if w.Move != nil {
		if a.Move, err = entity.ParseMove(*w.Move); err != nil {
			return entity.Noop, err
		}
	}
	return a, nil
}
