package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildBillJSONSchema returns the extraction schema as a generic map. It is
// sent to the model as the structured-output constraint and also compiled
// locally to validate what actually came back.
func BuildBillJSONSchema() map[string]any {
	nullableString := map[string]any{"type": []string{"string", "null"}}
	nullableNumber := map[string]any{"type": []string{"number", "null"}}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"bill_type": map[string]any{
				"type": "string",
				"enum": []string{"ELECTRICITY", "WATER", "GAS", "TELECOM", "TAX", "ETC"},
			},
			"vendor_name":          nullableString,
			"amount_due":           nullableNumber,
			"due_date":             nullableString,
			"billing_period_start": nullableString,
			"billing_period_end":   nullableString,
			"customer_number":      nullableString,
			"payment_account":      nullableString,
			"evidence": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"vendor_name":    nullableString,
					"amount_due":     nullableString,
					"due_date":       nullableString,
					"billing_period": nullableString,
				},
			},
			"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{"bill_type", "amount_due", "due_date", "evidence", "confidence"},
	}
}

// validateAgainstSchema checks the model output against the same schema the
// model was constrained with.
func validateAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("bill.schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("bill.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal extraction: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("extraction does not match schema: %w", err)
	}
	return nil
}
