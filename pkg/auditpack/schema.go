package auditpack

import "sort"

// SchemaV2 is the pack format that binds version and previous_hash into
// the signature.
const SchemaV2 = "radiology-clean.audit-pack.v2"

// CurrentSchema is the format produced by Build.
const CurrentSchema = SchemaV2

// schemaSpec describes how a supported format derives its signing payload.
type schemaSpec struct {
	signPayload func(p *Pack) map[string]any
}

var schemas = map[string]schemaSpec{
	SchemaV2: {signPayload: signPayloadV2},
}

// IsSupportedSchema reports whether packs of the given format can be verified.
func IsSupportedSchema(schema string) bool {
	_, ok := schemas[schema]
	return ok
}

// SupportedSchemas lists the formats Verify accepts, sorted.
func SupportedSchemas() []string {
	out := make([]string, 0, len(schemas))
	for s := range schemas {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func signPayloadV2(p *Pack) map[string]any {
	payload := map[string]any{
		"schema":       p.Schema,
		"case_id":      p.CaseID,
		"generated_at": p.GeneratedAt,
		"version":      p.Version,
		"hashes":       p.Hashes,
	}
	if p.PreviousHash != "" {
		payload["previous_hash"] = p.PreviousHash
	}
	return payload
}

// signPayloadFor picks the payload derivation for p. Unknown formats are
// checked against the current one so that a forged schema string also
// fails the signature check.
func signPayloadFor(p *Pack) map[string]any {
	if def, ok := schemas[p.Schema]; ok {
		return def.signPayload(p)
	}
	return schemas[CurrentSchema].signPayload(p)
}
