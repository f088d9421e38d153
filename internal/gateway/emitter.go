package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/abhisek/lexiz/internal/wire"
)

var (
	evaluateKeys = []wire.Key{wire.KeyScore, wire.KeyFeedback, wire.KeyErrors, wire.KeySuggestions, wire.KeyCorrectAnswer}
	examplesKeys = []wire.Key{wire.KeyExamples}
)

// unavailableFeedback is shown when an evaluation could not be produced.
const unavailableFeedback = "Evaluation is temporarily unavailable. Please try again later."

// emitter writes the frames of one item and remembers which fields the
// client has already received. After the first write error every call is a
// no-op and err holds the failure.
type emitter struct {
	enc  *wire.Encoder
	sent map[wire.Key]bool
	open map[wire.Key]*wordChunker
	err  error
}

func newEmitter(enc *wire.Encoder) *emitter {
	return &emitter{
		enc:  enc,
		sent: make(map[wire.Key]bool),
		open: make(map[wire.Key]*wordChunker),
	}
}

func (e *emitter) frame(f wire.Frame) {
	if e.err != nil {
		return
	}
	e.err = e.enc.Encode(f)
}

// value sends a whole value and marks the field as delivered.
func (e *emitter) value(key wire.Key, v any) {
	f, err := wire.Value(key, v)
	if err != nil {
		return
	}
	e.frame(f)
	e.sent[key] = true
}

// whole sends raw as a whole value unless the field was already delivered.
func (e *emitter) whole(key wire.Key, raw json.RawMessage) {
	if e.sent[key] {
		return
	}
	if v, ok := normalize(key, raw); ok {
		e.value(key, v)
	}
}

// text streams a piece of a text field through its word chunker.
func (e *emitter) text(key wire.Key, piece string) {
	c := e.open[key]
	if c == nil {
		if e.sent[key] {
			return
		}
		c = &wordChunker{}
		e.open[key] = c
		e.sent[key] = true
	}
	if out := c.Push(piece); out != "" {
		e.frame(wire.Chunk(key, out))
	}
}

// closeText flushes the held-back tail of a text field.
func (e *emitter) closeText(key wire.Key) {
	c := e.open[key]
	if c == nil {
		if !e.sent[key] {
			// An empty string still counts as delivered.
			e.sent[key] = true
		}
		return
	}
	delete(e.open, key)
	if out := c.Flush(); out != "" {
		e.frame(wire.Chunk(key, out))
	}
}

// closeAll flushes every open text field in keys order.
func (e *emitter) closeAll(keys []wire.Key) {
	for _, k := range keys {
		if e.open[k] != nil {
			e.closeText(k)
		}
	}
}

// fields applies scanner events for the allowed keys.
func (e *emitter) fields(events []fieldEvent, keys []wire.Key) {
	for _, ev := range events {
		key := wire.Key(ev.Key)
		if !hasKey(keys, key) {
			continue
		}
		switch {
		case ev.Raw != nil:
			e.whole(key, ev.Raw)
		case ev.End:
			if e.open[key] != nil || !e.sent[key] {
				e.closeText(key)
			}
		default:
			e.text(key, ev.Text)
		}
	}
}

// fill sends placeholders for every key in keys not yet delivered.
func (e *emitter) fill(keys []wire.Key, placeholders map[wire.Key]any) {
	for _, k := range keys {
		if e.sent[k] {
			continue
		}
		if v, ok := placeholders[k]; ok {
			e.value(k, v)
		}
	}
}

// missing lists the keys not yet delivered.
func (e *emitter) missing(keys []wire.Key) []string {
	var out []string
	for _, k := range keys {
		if !e.sent[k] {
			out = append(out, string(k))
		}
	}
	return out
}

func hasKey(keys []wire.Key, k wire.Key) bool {
	for _, key := range keys {
		if key == k {
			return true
		}
	}
	return false
}

// fallback returns the placeholder value of every field of the item's kind.
func fallback(it wire.Item) map[wire.Key]any {
	if it.Kind == wire.KindExamples {
		return map[wire.Key]any{wire.KeyExamples: []string{}}
	}
	return map[wire.Key]any{
		wire.KeyScore:         0,
		wire.KeyFeedback:      unavailableFeedback,
		wire.KeyErrors:        "",
		wire.KeySuggestions:   "",
		wire.KeyCorrectAnswer: it.Sentence,
	}
}

// normalize converts a reply value into the wire representation of key:
// a number for score, a string list for examples and a single string for
// text fields, with lists joined by "\n".
func normalize(key wire.Key, raw json.RawMessage) (any, bool) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}

	switch key {
	case wire.KeyScore:
		switch n := v.(type) {
		case json.Number:
			return n, true
		case string:
			s := strings.TrimSpace(n)
			if _, err := strconv.ParseFloat(s, 64); err == nil && json.Valid([]byte(s)) {
				return json.Number(s), true
			}
		}
		return nil, false

	case wire.KeyExamples:
		switch x := v.(type) {
		case []any:
			return stringList(x), true
		case string:
			var out []string
			for _, line := range strings.Split(x, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					out = append(out, line)
				}
			}
			return out, true
		}
		return nil, false
	}

	switch x := v.(type) {
	case string:
		return x, true
	case []any:
		return strings.Join(stringList(x), "\n"), true
	case nil:
		return "", true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return nil, false
}

func stringList(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
			continue
		}
		out = append(out, fmt.Sprint(it))
	}
	return out
}
