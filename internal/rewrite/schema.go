package rewrite

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// resultSchema constrains poll payloads before they are unmarshalled.
// Variants are optional while the job is pending but capped at five, and
// every variant must carry a non-empty question.
func resultSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": true,
		"properties": map[string]any{
			"status": map[string]any{
				"type": "string",
				"enum": []string{"pending", "done", "failed"},
			},
			"variants": map[string]any{
				"type":     "array",
				"maxItems": MaxVariants,
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": true,
					"properties": map[string]any{
						"question": map[string]any{"type": "string", "minLength": 1},
						"answer":   map[string]any{"type": "string"},
					},
					"required": []string{"question"},
				},
			},
		},
		"required": []string{"status"},
	}
}

// ValidateResultPayload validates raw poll bytes against the result
// schema.
func ValidateResultPayload(data []byte) error {
	b, err := json.Marshal(resultSchema())
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("result.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("payload does not match schema: %w", err)
	}
	return nil
}
