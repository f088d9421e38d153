package gateway

import (
	"fmt"
	"strings"

	"github.com/abhisek/lexiz/internal/wire"
)

const evaluateSystemPrompt = `You are a patient language teacher grading a learner's writing exercise.

Rules:
- Reply with a single JSON object and nothing else. No Markdown, no code fences.
- Emit the keys in this order: "score", "feedback", "errors", "suggestions", "correctAnswer".
- "score" is an integer from 0 to 100 for grammar, vocabulary use and naturalness.
- "feedback" is two or three encouraging sentences addressed to the learner.
- "errors" lists each concrete mistake as a short phrase. Use an empty array when there are none.
- "suggestions" lists concrete ways to improve the sentence. Use an empty array when there are none.
- "correctAnswer" is the learner's sentence rewritten correctly, keeping their meaning.
- If a target word is given, judge whether it is used with the given meaning.`

const examplesSystemPrompt = `You are a language teacher writing example sentences for a vocabulary word.

Rules:
- Write short, natural sentences that a learner could meet in everyday life.
- Every sentence must use the word with the given meaning.
- Put each sentence on its own line. No numbering, no bullets, no quotes, no commentary.`

const examplesJSONSystemPrompt = `You are a language teacher writing example sentences for a vocabulary word.

Rules:
- Reply with a single JSON object of the form {"examples": ["..."]} and nothing else.
- Write short, natural sentences that a learner could meet in everyday life.
- Every sentence must use the word with the given meaning.`

// buildEvaluateMessage describes the exercise and the learner's answer.
func buildEvaluateMessage(it wire.Item) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Language: %s\n", language(it))
	if it.Task != "" {
		fmt.Fprintf(&b, "Task: %s\n", it.Task)
	}
	if it.Word != "" {
		fmt.Fprintf(&b, "Target word: %s\n", it.Word)
	}
	if it.Meaning != "" {
		fmt.Fprintf(&b, "Meaning: %s\n", it.Meaning)
	}
	fmt.Fprintf(&b, "\nLearner's sentence:\n%s", strings.TrimSpace(it.Sentence))

	return b.String()
}

// buildExamplesMessage asks for count example sentences for the item's word.
func buildExamplesMessage(it wire.Item, count int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Language: %s\n", language(it))
	fmt.Fprintf(&b, "Word: %s\n", it.Word)
	if it.Meaning != "" {
		fmt.Fprintf(&b, "Meaning: %s\n", it.Meaning)
	}
	fmt.Fprintf(&b, "Number of sentences: %d", count)

	return b.String()
}

func language(it wire.Item) string {
	if it.Language == "" {
		return "English"
	}
	return it.Language
}
