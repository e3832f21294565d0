package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/entity-harvester/backend/internal/entity"
)

// entityFields is the canonical field set, in output order. The richer prompt
// variant (with id_number and technology_stack) is the one schema used
// everywhere: prompt, validation, storage, export.
var entityFields = []string{
	"full_name",
	"email",
	"phone_number",
	"address",
	"organisation",
	"role_title",
	"comments",
	"id_number",
	"technology_stack",
}

// BuildEntityJSONSchema returns the JSON-Schema (draft 2020-12 subset) for the
// normalized extraction envelope as a generic map.
func BuildEntityJSONSchema() map[string]any {
	props := map[string]any{}
	for _, f := range entityFields {
		props[f] = map[string]any{"type": []string{"string", "null"}}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"entities"},
		"properties": map[string]any{
			"entities": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties":           props,
				},
			},
		},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// ValidateNormalized re-serializes a normalized entity list into the expected
// envelope and checks it against the canonical schema. A violation here means
// the normalization contract itself regressed, so it is surfaced loudly
// instead of being swallowed into an empty list.
func ValidateNormalized(entities []entity.ExtractedEntity) error {
	if entities == nil {
		entities = []entity.ExtractedEntity{}
	}
	payload, err := json.Marshal(map[string]any{"entities": entities})
	if err != nil {
		return fmt.Errorf("marshal normalized entities: %w", err)
	}
	return ValidateJSONAgainstSchema(BuildEntityJSONSchema(), payload)
}
