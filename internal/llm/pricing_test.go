package llm

import "testing"

func TestLookupCost(t *testing.T) {
	tests := []struct {
		model string
		want  *ModelCost
	}{
		{"claude-haiku-4-5-20251001", &ModelCost{1, 5}},
		{"claude-haiku", &ModelCost{1, 5}},
		{"gemini-flash", &ModelCost{0.1, 0.4}},
		{"gpt-4o-mini", &ModelCost{0.15, 0.6}},
		{"google/gemini-2.0-flash-exp", &ModelCost{0, 0}},
		{"openai/gpt-4o-mini", &ModelCost{0.15, 0.6}},
		{"google/gemini-2.5-flash:free", &ModelCost{0.3, 2.5}},
		{"meta-llama/llama-3-8b", nil},
		{"mock", nil},
	}
	for _, tt := range tests {
		got := LookupCost(tt.model)
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("LookupCost(%q) = %+v, want nil", tt.model, *got)
		case tt.want != nil && (got == nil || *got != *tt.want):
			t.Errorf("LookupCost(%q) = %v, want %+v", tt.model, got, *tt.want)
		}
	}
}

func TestModelCost_Cost(t *testing.T) {
	c := ModelCost{InputPerMTok: 1, OutputPerMTok: 5}
	if got := c.Cost(2_000, 400); got != 0.004 {
		t.Fatalf("cost = %v, want 0.004", got)
	}
}
