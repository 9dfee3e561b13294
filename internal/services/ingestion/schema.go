package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var looseScalar = map[string]any{"type": []string{"string", "number", "null"}}

var pixReceiptSchema = map[string]any{
	"type":     "array",
	"maxItems": 50000,
	"items": map[string]any{
		"type":     "object",
		"required": []string{"id"},
		"properties": map[string]any{
			"id":                    map[string]any{"type": "string", "minLength": 1, "maxLength": 128},
			"amount":                looseScalar,
			"payer_name":            map[string]any{"type": []string{"string", "null"}},
			"payer_document":        looseScalar,
			"transaction_id":        map[string]any{"type": []string{"string", "null"}},
			"transaction_date":      looseScalar,
			"bank_name":             map[string]any{"type": []string{"string", "null"}},
			"extraction_confidence": map[string]any{"type": []string{"number", "null"}, "minimum": 0, "maximum": 100},
		},
	},
}

var bankTransactionSchema = map[string]any{
	"type":     "array",
	"maxItems": 200000,
	"items": map[string]any{
		"type":     "object",
		"required": []string{"id"},
		"properties": map[string]any{
			"id":               map[string]any{"type": "string", "minLength": 1, "maxLength": 128},
			"amount":           looseScalar,
			"description":      map[string]any{"type": []string{"string", "null"}},
			"transaction_date": looseScalar,
			"transaction_id":   map[string]any{"type": []string{"string", "null"}},
			"bank_name":        map[string]any{"type": []string{"string", "null"}},
		},
	},
}

func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
