package tools

import "testing"

func TestArgsSchemaReflectsRequiredAndOptionalFields(t *testing.T) {
	schema := argsSchema(&writeToFileArgs{})

	if schema["type"] != "object" {
		t.Fatalf("expected type object, got %v", schema["type"])
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected properties map, got %T", schema["properties"])
	}
	if _, ok := props["path"]; !ok {
		t.Fatalf("expected a path property, got %+v", props)
	}
	if _, ok := props["content"]; !ok {
		t.Fatalf("expected a content property, got %+v", props)
	}

	required, ok := schema["required"].([]any)
	if !ok {
		t.Fatalf("expected required list, got %T", schema["required"])
	}
	want := map[string]bool{"path": true, "content": true}
	if len(required) != len(want) {
		t.Fatalf("expected %d required fields, got %+v", len(want), required)
	}
	for _, r := range required {
		if !want[r.(string)] {
			t.Fatalf("unexpected required field %v", r)
		}
	}
}

func TestArgsSchemaOmitsUnmarshalableDollarKeys(t *testing.T) {
	schema := argsSchema(&readFileArgs{})
	if _, ok := schema["$schema"]; ok {
		t.Fatalf("expected $schema to be stripped")
	}
	if _, ok := schema["$id"]; ok {
		t.Fatalf("expected $id to be stripped")
	}
}
