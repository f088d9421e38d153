// Package sanitize extracts JSON documents from model output and wire lines.
//
// The same rules run on the server (whole-JSON upstream replies) and on the
// client (decoding frame lines), so both sides agree on what counts as a
// complete document.
package sanitize

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	leadingFence  = regexp.MustCompile("(?i)^\\s*```(?:json)?[ \\t]*\\r?\\n?")
	trailingFence = regexp.MustCompile("\\r?\\n?[ \\t]*```\\s*$")
)

// ErrNoObject is wrapped by ParseError when the text holds no {...} span.
var ErrNoObject = errors.New("no JSON object found")

// ParseError reports text that should have been a complete JSON object but
// could not be parsed after sanitization.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StripFences removes one leading ``` or ```json marker and one trailing ```
// marker, case-insensitively.
func StripFences(text string) string {
	text = leadingFence.ReplaceAllString(text, "")
	return trailingFence.ReplaceAllString(text, "")
}

// IsFence reports whether line consists only of a Markdown fence marker.
func IsFence(line string) bool {
	s := strings.TrimSpace(line)
	if !strings.HasPrefix(s, "```") {
		return false
	}
	rest := strings.TrimSpace(s[3:])
	return rest == "" || strings.EqualFold(rest, "json")
}

// StripControl drops C0 (U+0000-U+001F), DEL and C1 (U+007F-U+009F) runes.
// Escaped sequences such as \n inside JSON strings are plain ASCII and survive.
func StripControl(text string) string {
	return strings.Map(func(r rune) rune {
		if r <= 0x1F || (r >= 0x7F && r <= 0x9F) {
			return -1
		}
		return r
	}, text)
}

// Clean applies fence stripping, control stripping and outer-object slicing.
// The result is the best candidate for a JSON object; it may still be invalid.
func Clean(text string) string {
	text = StripControl(StripFences(text))
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// ExtractJSON returns the outermost JSON object found in text, or nil when
// the text is not (yet) a complete object. It never panics.
func ExtractJSON(text string) map[string]any {
	var obj map[string]any
	if err := Decode(text, &obj); err != nil {
		return nil
	}
	return obj
}

// Decode cleans text and strictly unmarshals the object into v.
// Failures are reported as *ParseError.
func Decode(text string, v any) error {
	cleaned := Clean(text)
	if !strings.HasPrefix(cleaned, "{") {
		return &ParseError{Text: text, Err: ErrNoObject}
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return &ParseError{Text: text, Err: err}
	}
	return nil
}
