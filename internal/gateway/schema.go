package gateway

import "github.com/abhisek/lexiz/internal/llm"

// EvaluationSchema defines the JSON reply for a graded sentence.
var EvaluationSchema = &llm.Schema{
	Name:        "sentence-evaluation",
	Description: "Grade, feedback and correction for a learner's sentence",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"maximum":     100,
				"description": "Overall quality from 0 to 100",
			},
			"feedback": map[string]any{
				"type":        "string",
				"description": "Short encouraging feedback addressed to the learner",
			},
			"errors": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Concrete mistakes, one short phrase each",
			},
			"suggestions": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Concrete ways to improve the sentence",
			},
			"correctAnswer": map[string]any{
				"type":        "string",
				"description": "The sentence rewritten correctly, keeping the learner's meaning",
			},
		},
		"required":             []any{"score", "feedback", "errors", "suggestions", "correctAnswer"},
		"additionalProperties": false,
	},
}

// ExamplesSchema defines the JSON reply for example sentences.
var ExamplesSchema = &llm.Schema{
	Name:        "word-examples",
	Description: "Example sentences for a vocabulary word",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"examples": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"minItems":    1,
				"description": "Example sentences using the word with the given meaning",
			},
		},
		"required":             []any{"examples"},
		"additionalProperties": false,
	},
}
