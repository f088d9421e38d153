package llm

import (
	"encoding/json"
	"errors"
	"testing"
)

func gradeSchema() *Schema {
	return &Schema{
		Name:        "word-grade",
		Description: "Graded sentence for a vocabulary word",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"score":         map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
				"feedback":      map[string]any{"type": "string"},
				"level":         map[string]any{"type": "string", "enum": []any{"beginner", "intermediate", "advanced"}},
				"correctAnswer": map[string]any{"type": "string"},
			},
			"required": []any{"score", "feedback"},
		},
	}
}

func TestValidateJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"complete grade", `{"score":88,"feedback":"Natural usage.","level":"advanced","correctAnswer":"-"}`, false},
		{"optional fields omitted", `{"score":40,"feedback":"Wrong sense of the word."}`, false},
		{"missing feedback", `{"score":40}`, true},
		{"score as text", `{"score":"forty","feedback":"x"}`, true},
		{"score out of range", `{"score":120,"feedback":"x"}`, true},
		{"unknown level", `{"score":60,"feedback":"x","level":"expert"}`, true},
		{"malformed", `{score: 60}`, true},
		{"empty reply", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJSON(gradeSchema(), json.RawMessage(tt.raw))
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("expected no error, got: %v", err)
				}
				return
			}
			var invErr *ErrInvalidResponse
			if !errors.As(err, &invErr) {
				t.Fatalf("expected ErrInvalidResponse, got: %T (%v)", err, err)
			}
		})
	}
}

func TestValidateJSON_NilSchema(t *testing.T) {
	if err := ValidateJSON(nil, json.RawMessage(`{"anything":"goes"}`)); err != nil {
		t.Fatalf("expected no error with nil schema, got: %v", err)
	}
}

func TestValidateJSON_ExampleList(t *testing.T) {
	schema := &Schema{
		Name:        "word-examples",
		Description: "Example sentences for a word",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"word": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text": map[string]any{"type": "string"},
					},
					"required": []any{"text"},
				},
				"examples": map[string]any{
					"type":     "array",
					"items":    map[string]any{"type": "string"},
					"minItems": 1,
				},
			},
			"required": []any{"word", "examples"},
		},
	}

	valid := json.RawMessage(`{"word":{"text":"ephemeral"},"examples":["Fame is ephemeral.","An ephemeral stream."]}`)
	if err := ValidateJSON(schema, valid); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	for _, raw := range []string{
		`{"word":{"text":"ephemeral"},"examples":[1,2]}`,
		`{"word":{"text":"ephemeral"},"examples":[]}`,
		`{"word":{},"examples":["Fame is ephemeral."]}`,
	} {
		if err := ValidateJSON(schema, json.RawMessage(raw)); err == nil {
			t.Errorf("expected error for %s", raw)
		}
	}
}

func TestStructuredContent_StripsFences(t *testing.T) {
	text := "```json\n{\"score\":70,\"feedback\":\"Close.\"}\n```"
	content, err := structuredContent(gradeSchema(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(content) != `{"score":70,"feedback":"Close."}` {
		t.Fatalf("unexpected content: %s", content)
	}
}

func TestStructuredContent_NoSchemaKeepsText(t *testing.T) {
	content, err := structuredContent(nil, "1. Fame is ephemeral.\n2. An ephemeral stream.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(content) != "1. Fame is ephemeral.\n2. An ephemeral stream." {
		t.Fatalf("unexpected content: %q", content)
	}
}
