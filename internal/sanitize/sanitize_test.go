package sanitize

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestExtractJSON_Plain(t *testing.T) {
	got := ExtractJSON(`{"score":87,"feedback":"Good grammar."}`)
	if got == nil {
		t.Fatal("expected object, got nil")
	}
	if got["score"] != float64(87) {
		t.Fatalf("expected score 87, got %v", got["score"])
	}
}

func TestExtractJSON_FencedMatchesUnwrapped(t *testing.T) {
	plain := `{"e":"data","k":"feedback","c":"Nice "}`
	tests := []struct {
		name string
		in   string
	}{
		{"json fence", "```json\n" + plain + "\n```"},
		{"upper fence", "```JSON\n" + plain + "\n```"},
		{"bare fence", "```\n" + plain + "\n```"},
		{"single line", "```json" + plain + "```"},
	}

	want := ExtractJSON(plain)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON(tt.in)
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestExtractJSON_RoundTrip(t *testing.T) {
	inputs := []string{
		`{"score":72,"feedback":"Nice try.","errors":"","nested":{"a":[1,2,3]}}`,
		"Here is the result:\n```json\n{\"score\": 10, \"feedback\": \"Ok\"}\n```\nThanks!",
		`{"e":"end"}`,
	}
	for _, in := range inputs {
		first := ExtractJSON(in)
		if first == nil {
			t.Fatalf("expected object for %q", in)
		}
		raw, err := json.Marshal(first)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		second := ExtractJSON(string(raw))
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("round trip mismatch: %v vs %v", first, second)
		}
	}
}

func TestExtractJSON_SurroundingProse(t *testing.T) {
	got := ExtractJSON(`Sure! {"score": 50} hope that helps`)
	if got == nil || got["score"] != float64(50) {
		t.Fatalf("expected score 50, got %v", got)
	}
}

func TestExtractJSON_ControlCharacters(t *testing.T) {
	in := "{\"feedback\":\"tab\there\x00\",\u0085 \"score\":1}"
	got := ExtractJSON(in)
	if got == nil {
		t.Fatal("expected object after stripping control characters")
	}
	if got["feedback"] != "tabhere" {
		t.Fatalf("unexpected feedback %q", got["feedback"])
	}
}

func TestExtractJSON_Invalid(t *testing.T) {
	for _, in := range []string{"", "not json", `{"score":`, `}{`, "[1,2]", "```json\n```"} {
		if got := ExtractJSON(in); got != nil {
			t.Errorf("ExtractJSON(%q) = %v, want nil", in, got)
		}
	}
}

func TestDecode_ParseError(t *testing.T) {
	var v map[string]any
	err := Decode("not json", &v)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if !errors.Is(err, ErrNoObject) {
		t.Fatalf("expected ErrNoObject, got %v", err)
	}

	err = Decode(`{"a":}`, &v)
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError for broken object, got %T", err)
	}
}

func TestIsFence(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"```", true},
		{"```json", true},
		{"  ```JSON  ", true},
		{"```go", false},
		{`{"e":"start"}`, false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsFence(tt.line); got != tt.want {
			t.Errorf("IsFence(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}
