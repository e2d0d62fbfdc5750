package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaBaseURL is a synthetic location used to register tool input
// schemas with the compiler. Nothing is ever fetched from it.
const schemaBaseURL = "https://briefer.local/tools/"

// compileInputSchema compiles a tool's advertised input schema. A nil
// or empty schema yields a nil validator: anything goes.
func compileInputSchema(tool string, schema map[string]any) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}

	doc, err := normalizeJSON(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}

	url := schemaBaseURL + tool + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return sch, nil
}

// validateArgs checks args against sch. A nil map is validated as an
// empty object.
func validateArgs(sch *jsonschema.Schema, args map[string]any) error {
	if sch == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	inst, err := normalizeJSON(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("invalid arguments: %s", flattenValidationError(err))
	}
	return nil
}

// normalizeJSON round-trips v through the encoder so numbers arrive as
// json.Number, which is what the validator expects.
func normalizeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

// flattenValidationError turns the validator's indented multi-line
// report into one line the model can read back.
func flattenValidationError(err error) string {
	lines := strings.Split(err.Error(), "\n")
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, "; ")
}
