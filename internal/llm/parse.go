package llm

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/entity-harvester/backend/internal/entity"
)

// maxExcerptLen bounds how much offending model output a ResponseError carries.
const maxExcerptLen = 280

// ParseEntities turns raw model output into an ordered entity list.
//
// The model is supposed to return the {"entities":[...]} envelope, but the
// output is untrusted free-form text: it may be wrapped in code fences, may be
// a bare array, and elements may miss fields or have the wrong types. The
// parser tolerates shape variance field by field but never repairs broken
// JSON and never fabricates data.
func ParseEntities(raw string, logger *slog.Logger) ([]entity.ExtractedEntity, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := stripCodeFences(strings.TrimSpace(raw))

	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &ResponseError{Reason: "invalid JSON", Excerpt: excerpt(s)}
	}
	if dec.More() {
		return nil, &ResponseError{Reason: "trailing content after JSON value", Excerpt: excerpt(s)}
	}

	var elements []any
	switch t := v.(type) {
	case []any:
		// The model forgot the wrapping object; accept the bare array.
		elements = t
	case map[string]any:
		inner, ok := t["entities"]
		if !ok {
			return nil, &ResponseError{Reason: `missing "entities" field`, Excerpt: excerpt(s)}
		}
		arr, ok := inner.([]any)
		if !ok {
			return nil, &ResponseError{Reason: `"entities" is not an array`, Excerpt: excerpt(s)}
		}
		elements = arr
	default:
		return nil, &ResponseError{Reason: "top-level value is neither object nor array", Excerpt: excerpt(s)}
	}

	entities := make([]entity.ExtractedEntity, len(elements))
	for i, el := range elements {
		obj, ok := el.(map[string]any)
		if !ok {
			// Keep the index: an all-null placeholder preserves length and order.
			logger.Warn("llm.parse.placeholder_entity", "index", i, "got", typeName(el))
			continue
		}
		entities[i] = normalizeEntity(obj, i, logger)
	}
	return entities, nil
}

// normalizeEntity applies the field rule to each recognized key independently.
// Unrecognized keys are ignored; absent keys stay nil.
func normalizeEntity(obj map[string]any, index int, logger *slog.Logger) entity.ExtractedEntity {
	get := func(key string) *string {
		v, ok := obj[key]
		if !ok {
			return nil
		}
		s, coerced := normalizeField(v)
		if coerced {
			logger.Warn("llm.parse.field_coerced", "index", index, "field", key)
		}
		return s
	}
	return entity.ExtractedEntity{
		FullName:        get("full_name"),
		Email:           get("email"),
		PhoneNumber:     get("phone_number"),
		Address:         get("address"),
		Organisation:    get("organisation"),
		RoleTitle:       get("role_title"),
		Comments:        get("comments"),
		IDNumber:        get("id_number"),
		TechnologyStack: get("technology_stack"),
	}
}

// normalizeField implements the uniform value rule: null stays null, strings
// are trimmed with empty collapsing to null, non-string scalars are
// stringified. Composite values are re-marshalled to compact JSON and flagged.
func normalizeField(v any) (*string, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return nil, false
		}
		return &trimmed, false
	case json.Number:
		s := t.String()
		return &s, false
	case bool:
		s := strconv.FormatBool(t)
		return &s, false
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, true
		}
		s := string(b)
		return &s, true
	}
}

// stripCodeFences removes a wrapping markdown code fence, with or without a
// language tag. Anything short of a full fence pair is left for the strict
// JSON parse to reject.
func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	rest := s[len("```"):]
	// Drop a language tag up to the first newline.
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[i+1:]
	} else {
		return s
	}
	rest = strings.TrimSpace(rest)
	rest = strings.TrimSuffix(rest, "```")
	return strings.TrimSpace(rest)
}

func excerpt(s string) string {
	if len(s) <= maxExcerptLen {
		return s
	}
	return s[:maxExcerptLen] + "…"
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "bool"
	case []any:
		return "array"
	default:
		return "object"
	}
}
