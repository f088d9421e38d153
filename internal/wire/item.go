package wire

import (
	"fmt"
	"strings"
)

// Kind selects what the gateway asks the upstream model to produce.
type Kind string

const (
	// KindEvaluate grades a learner's sentence: score, feedback, errors,
	// suggestions and a corrected version.
	KindEvaluate Kind = "evaluate"

	// KindExamples generates example sentences for a vocabulary word.
	KindExamples Kind = "examples"
)

// Mode selects how an evaluation reply is obtained.
type Mode string

const (
	// ModeStream streams the JSON reply and forwards fields as they arrive.
	ModeStream Mode = "stream"

	// ModeWhole asks for one schema-validated JSON reply.
	ModeWhole Mode = "whole"
)

// Item is one unit of work in a batch request.
type Item struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Mode Mode   `json:"mode,omitempty"`

	// Word and Meaning describe the vocabulary entry the item is about.
	Word    string `json:"word,omitempty"`
	Meaning string `json:"meaning,omitempty"`

	// Sentence is the learner's text for evaluate items.
	Sentence string `json:"sentence,omitempty"`

	// Task is the exercise instruction shown to the learner, if any.
	Task string `json:"task,omitempty"`

	// Language is the target language being learned. Default: English.
	Language string `json:"language,omitempty"`
}

// Validate checks an item before any frame is written.
func (it Item) Validate() error {
	switch it.Kind {
	case KindEvaluate:
		if strings.TrimSpace(it.Sentence) == "" {
			return fmt.Errorf("item %q: sentence is required for %s", it.ID, it.Kind)
		}
	case KindExamples:
		if strings.TrimSpace(it.Word) == "" {
			return fmt.Errorf("item %q: word is required for %s", it.ID, it.Kind)
		}
	default:
		return fmt.Errorf("item %q: unknown kind %q", it.ID, it.Kind)
	}
	switch it.Mode {
	case "", ModeStream, ModeWhole:
	default:
		return fmt.Errorf("item %q: unknown mode %q", it.ID, it.Mode)
	}
	return nil
}

// BatchRequest is the body of a stream request.
type BatchRequest struct {
	Items []Item `json:"items"`
}

// Validate checks the batch against the configured size limit.
func (b BatchRequest) Validate(maxItems int) error {
	if len(b.Items) == 0 {
		return fmt.Errorf("batch has no items")
	}
	if maxItems > 0 && len(b.Items) > maxItems {
		return fmt.Errorf("batch has %d items, limit is %d", len(b.Items), maxItems)
	}
	for _, it := range b.Items {
		if err := it.Validate(); err != nil {
			return err
		}
	}
	return nil
}
