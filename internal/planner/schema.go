package planner

import (
	"encoding/json"
	"sync"

	"github.com/jackzampolin/longform/internal/document"
	"github.com/jackzampolin/longform/internal/recovery"
)

var schemas sync.Map // field+"/"+id -> *recovery.Schema

// planSchema describes a plan response: field holds a non-empty array of
// objects that each carry the kind's id.
func planSchema(spec document.KindSpec, field string) (*recovery.Schema, error) {
	key := field + "/" + spec.IDField
	if s, ok := schemas.Load(key); ok {
		return s.(*recovery.Schema), nil
	}
	doc := map[string]any{
		"type":     "object",
		"required": []string{field},
		"properties": map[string]any{
			field: map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type":     "object",
					"required": []string{spec.IDField},
					"properties": map[string]any{
						spec.IDField: map[string]any{"type": []string{"string", "number"}},
					},
				},
			},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	s, err := recovery.CompileSchema(key+".json", raw)
	if err != nil {
		return nil, err
	}
	actual, _ := schemas.LoadOrStore(key, s)
	return actual.(*recovery.Schema), nil
}
