package lirads

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const dslSchemaURL = "https://lirads-audit-server/schemas/finding-dsl.json"

// DSLSchema is the JSON Schema (draft 2020-12) accepted for a finding.
var DSLSchema = fmt.Sprintf(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "arterial_phase": {
      "type": "object",
      "additionalProperties": false,
      "properties": {"hyperenhancement": {"type": "boolean"}}
    },
    "portal_phase": {
      "type": "object",
      "additionalProperties": false,
      "properties": {"washout": {"type": "boolean"}}
    },
    "delayed_phase": {
      "type": "object",
      "additionalProperties": false,
      "properties": {"capsule": {"type": "boolean"}}
    },
    "lesion_size_mm": {"type": "integer", "minimum": 0, "maximum": %d},
    "cirrhosis": {"type": "boolean"},
    "rim_aphe": {"type": "boolean"},
    "peripheral_washout": {"type": "boolean"},
    "delayed_central_enhancement": {"type": "boolean"},
    "infiltrative": {"type": "boolean"},
    "tumor_in_vein": {"type": "boolean"},
    "ancillary_features": {
      "type": "object",
      "additionalProperties": {"type": "boolean"}
    }
  }
}`, MaxSizeMM)

var dslSchema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(dslSchemaURL, strings.NewReader(DSLSchema)); err != nil {
		panic(fmt.Sprintf("adding dsl schema: %v", err))
	}
	return c.MustCompile(dslSchemaURL)
}()

// SchemaError lists the ways a document violates the finding schema.
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	return "finding does not match the DSL schema: " + strings.Join(e.Violations, "; ")
}

// DecodeDSL validates data against DSLSchema and decodes it. Absent fields
// keep their zero value. Malformed JSON is returned as the decoder error; a
// well-formed document that violates the schema yields a *SchemaError.
func DecodeDSL(data []byte) (DSL, error) {
	var d DSL
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return d, fmt.Errorf("decoding finding: %w", err)
	}
	if dec.More() {
		return d, fmt.Errorf("decoding finding: trailing data after document")
	}
	if err := dslSchema.Validate(doc); err != nil {
		return d, &SchemaError{Violations: violations(err)}
	}

	// Draft 2020-12 treats 12.0 as an integer; encoding/json does not.
	obj := doc.(map[string]any)
	if n, ok := obj["lesion_size_mm"].(json.Number); ok {
		f, err := n.Float64()
		if err != nil {
			return d, fmt.Errorf("decoding finding: lesion_size_mm: %w", err)
		}
		obj["lesion_size_mm"] = int(f)
	}
	normalized, err := json.Marshal(obj)
	if err != nil {
		return d, fmt.Errorf("decoding finding: %w", err)
	}
	if err := json.Unmarshal(normalized, &d); err != nil {
		return d, fmt.Errorf("decoding finding: %w", err)
	}
	return d, nil
}

// violations flattens a validation error into "location: message" lines.
func violations(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, loc+": "+e.Message)
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	return out
}
