package materialize

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// snapshotSchema is the contract the execution side relies on. Every
// recomputed snapshot is checked against it before it is persisted, so a
// projection bug surfaces here instead of inside the TalkFlow runner.
const snapshotSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["flow_id", "name", "slug", "steps", "connections"],
	"properties": {
		"flow_id": {"type": "string", "minLength": 1},
		"name": {"type": "string"},
		"slug": {"type": "string"},
		"steps": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "name", "entry_point", "inputs", "outputs"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"name": {"type": "string"},
					"entry_point": {"type": "boolean"},
					"prompt": {"type": "string"},
					"objective": {"type": "string"},
					"inputs": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["id", "name", "input_type"],
							"properties": {
								"id": {"type": "string", "minLength": 1},
								"name": {"type": "string"},
								"input_type": {"type": "string", "enum": ["completed", "not_completed", "any"]}
							}
						}
					},
					"outputs": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["id", "name"],
							"properties": {
								"id": {"type": "string", "minLength": 1},
								"name": {"type": "string"},
								"condition": {"type": "string"}
							}
						}
					}
				}
			}
		},
		"connections": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["source_output_id", "target_input_id"],
				"properties": {
					"source_output_id": {"type": "string", "minLength": 1},
					"target_input_id": {"type": "string", "minLength": 1}
				}
			}
		}
	}
}`

// ValidateSnapshot checks an encoded snapshot against the schema the
// execution side consumes.
func ValidateSnapshot(raw []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(snapshotSchema)
	documentLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate snapshot: %w", err)
	}

	if !result.Valid() {
		return fmt.Errorf("snapshot does not match schema: %v", result.Errors())
	}

	return nil
}
