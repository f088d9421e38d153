// Package reconstruct folds a frame stream back into structured results.
//
// Errors and suggestions are carried as single accumulated strings, one entry
// per line. A whole array value for either field is joined with "\n".
package reconstruct

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/abhisek/lexiz/internal/wire"
)

// Accumulator is the client-side view of one item. Text fields only grow
// until End; after End the accumulator is frozen.
type Accumulator struct {
	ID      string `json:"id,omitempty"`
	Word    string `json:"word,omitempty"`
	Meaning string `json:"meaning,omitempty"`

	Score         *float64 `json:"score"`
	Feedback      string   `json:"feedback"`
	Errors        string   `json:"errors"`
	Suggestions   string   `json:"suggestions"`
	CorrectAnswer string   `json:"correctAnswer"`
	Examples      []string `json:"examples,omitempty"`

	// ErrorMessage holds the last item-level error frame, if any.
	ErrorMessage string `json:"error,omitempty"`
	IsLoading    bool   `json:"isLoading"`

	examplesText string
}

// Failed reports whether the item received an error frame.
func (a *Accumulator) Failed() bool {
	return a.ErrorMessage != ""
}

// Clone returns a deep copy safe to hand to another goroutine.
func (a *Accumulator) Clone() Accumulator {
	c := *a
	if a.Score != nil {
		s := *a.Score
		c.Score = &s
	}
	if a.Examples != nil {
		c.Examples = append([]string(nil), a.Examples...)
	}
	return c
}

// appendChunk joins text onto field, inserting one space only when the
// existing text is non-empty and does not already end with whitespace.
func appendChunk(field, text string) string {
	if field == "" {
		return text
	}
	last, _ := utf8.DecodeLastRuneInString(field)
	if unicode.IsSpace(last) {
		return field + text
	}
	return field + " " + text
}

// textField returns a pointer to the string field addressed by key.
func (a *Accumulator) textField(key wire.Key) *string {
	switch key {
	case wire.KeyID:
		return &a.ID
	case wire.KeyWord:
		return &a.Word
	case wire.KeyMeaning:
		return &a.Meaning
	case wire.KeyFeedback:
		return &a.Feedback
	case wire.KeyErrors:
		return &a.Errors
	case wire.KeySuggestions:
		return &a.Suggestions
	case wire.KeyCorrectAnswer:
		return &a.CorrectAnswer
	}
	return nil
}

// applyChunk appends an incremental text chunk. It reports false for keys
// that do not accept chunks.
func (a *Accumulator) applyChunk(key wire.Key, text string) bool {
	if key == wire.KeyExamples {
		a.examplesText = appendChunk(a.examplesText, text)
		a.Examples = strings.Split(a.examplesText, "\n")
		return true
	}
	if p := a.textField(key); p != nil {
		*p = appendChunk(*p, text)
		return true
	}
	return false
}

// applyValue assigns a whole value. It reports false for unknown keys or
// values of the wrong shape.
func (a *Accumulator) applyValue(key wire.Key, raw json.RawMessage) bool {
	var v any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return false
	}

	switch key {
	case wire.KeyScore:
		score, ok := toFloat(v)
		if !ok {
			return false
		}
		a.Score = &score
		return true
	case wire.KeyExamples:
		list, ok := toStrings(v)
		if !ok {
			return false
		}
		a.examplesText = strings.Join(list, "\n")
		a.Examples = list
		return true
	}

	p := a.textField(key)
	if p == nil {
		return false
	}
	switch val := v.(type) {
	case string:
		*p = val
	case json.Number:
		*p = val.String()
	case []any:
		list, ok := toStrings(val)
		if !ok {
			return false
		}
		*p = strings.Join(list, "\n")
	case nil:
		*p = ""
	default:
		return false
	}
	return true
}

// finalize freezes the item and normalizes the examples list.
func (a *Accumulator) finalize() {
	a.IsLoading = false
	if a.Examples == nil {
		return
	}
	kept := a.Examples[:0:0]
	for _, ex := range a.Examples {
		if ex = strings.TrimSpace(ex); ex != "" {
			kept = append(kept, ex)
		}
	}
	a.Examples = kept
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toStrings(v any) ([]string, bool) {
	switch val := v.(type) {
	case string:
		return []string{val}, true
	case []any:
		out := make([]string, 0, len(val))
		for _, e := range val {
			switch s := e.(type) {
			case string:
				out = append(out, s)
			case json.Number:
				out = append(out, s.String())
			default:
				return nil, false
			}
		}
		return out, true
	}
	return nil, false
}
