// Package wire defines the newline-delimited JSON framing shared by the
// stream gateway and its clients.
//
//	{"e":"start"}
//	{"e":"data","k":"score","v":87}
//	{"e":"data","k":"feedback","c":"Good "}
//	{"e":"error","m":"circuit open, retry in 12s"}
//	{"e":"end"}
//
// One connection carries one item at a time: Start, Data*, then End, with an
// optional Error before End.
package wire

import (
	"encoding/json"
	"fmt"
)

// Event is the frame tag.
type Event string

const (
	EventStart Event = "start"
	EventData  Event = "data"
	EventEnd   Event = "end"
	EventError Event = "error"
)

// Valid reports whether e is a known frame tag.
func (e Event) Valid() bool {
	switch e {
	case EventStart, EventData, EventEnd, EventError:
		return true
	}
	return false
}

// Key names an accumulator field carried by a data frame.
type Key string

const (
	KeyID            Key = "id"
	KeyWord          Key = "word"
	KeyMeaning       Key = "meaning"
	KeyScore         Key = "score"
	KeyFeedback      Key = "feedback"
	KeyErrors        Key = "errors"
	KeySuggestions   Key = "suggestions"
	KeyCorrectAnswer Key = "correctAnswer"
	KeyExamples      Key = "examples"
)

// Frame is one wire message. Data frames carry either a whole value in V
// (numbers, ids, arrays, replacement strings) or a text chunk in C that the
// receiver appends to the field.
type Frame struct {
	Event   Event           `json:"e"`
	Key     Key             `json:"k,omitempty"`
	Value   json.RawMessage `json:"v,omitempty"`
	Chunk   string          `json:"c,omitempty"`
	Message string          `json:"m,omitempty"`
}

// IsChunk reports whether a data frame carries an incremental text chunk.
func (f Frame) IsChunk() bool {
	return f.Value == nil && f.Chunk != ""
}

// Start marks the beginning of one item.
func Start() Frame { return Frame{Event: EventStart} }

// End marks the completion of one item.
func End() Frame { return Frame{Event: EventEnd} }

// Fault reports a recoverable item-level error.
func Fault(msg string) Frame { return Frame{Event: EventError, Message: msg} }

// Chunk builds a data frame appending text to key.
func Chunk(key Key, text string) Frame {
	return Frame{Event: EventData, Key: key, Chunk: text}
}

// Value builds a data frame assigning v to key.
func Value(key Key, v any) (Frame, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s value: %w", key, err)
	}
	return Frame{Event: EventData, Key: key, Value: raw}, nil
}
