package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// argsSchema reflects args (a pointer to a struct tagged with
// `json`/`jsonschema` field tags) into the plain map[string]any shape
// every Tool.Schema implementation returns, so each tool's argument
// contract is declared once as a Go type instead of hand-assembled as a
// map literal. ExpandedStruct emits the struct's own properties at the
// top level rather than behind a $ref, and DoNotReference inlines any
// nested struct instead of emitting $defs — neither of which any tool
// here needs, since every args struct is flat.
func argsSchema(args any) map[string]any {
	reflector := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	schema := reflector.Reflect(args)
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m
}
