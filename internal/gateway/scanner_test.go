package gateway

import (
	"strings"
	"testing"
)

type scanResult struct {
	text map[string]string
	raw  map[string]string
	ends []string
}

func scanInPieces(input string, size int, textKeys ...string) (scanResult, bool) {
	s := newFieldScanner(textKeys...)
	res := scanResult{text: map[string]string{}, raw: map[string]string{}}
	collect := func(events []fieldEvent) {
		for _, ev := range events {
			switch {
			case ev.Raw != nil:
				res.raw[ev.Key] = string(ev.Raw)
				res.ends = append(res.ends, ev.Key)
			case ev.End:
				res.ends = append(res.ends, ev.Key)
			default:
				res.text[ev.Key] += ev.Text
			}
		}
	}
	if size <= 0 {
		size = len(input)
	}
	for start := 0; start < len(input); start += size {
		collect(s.Feed(input[start:min(start+size, len(input))]))
	}
	collect(s.Close())
	return res, s.Complete()
}

func TestFieldScanner_SplitInvariant(t *testing.T) {
	input := "```json\n" + `{"score": 72, "feedback": "Nice try, \"almost\".\nKeep going", ` +
		`"errors": ["Subject-verb agreement", "Missing article"], "suggestions": [], ` +
		`"correctAnswer": "Café time 😀", "extra": {"a": [1, "}"]}}` + "\n```"

	for _, size := range []int{1, 2, 3, 5, 7, 64, 0} {
		res, complete := scanInPieces(input, size, "feedback", "errors", "suggestions", "correctAnswer")
		if !complete {
			t.Fatalf("size %d: object not complete", size)
		}
		if got := res.raw["score"]; got != "72" {
			t.Fatalf("size %d: score raw = %q", size, got)
		}
		if got := res.text["feedback"]; got != "Nice try, \"almost\".\nKeep going" {
			t.Fatalf("size %d: feedback = %q", size, got)
		}
		if got := res.text["errors"]; got != "Subject-verb agreement\nMissing article" {
			t.Fatalf("size %d: errors = %q", size, got)
		}
		if got := res.text["correctAnswer"]; got != "Café time 😀" {
			t.Fatalf("size %d: correctAnswer = %q", size, got)
		}
		if got := res.raw["extra"]; got != `{"a": [1, "}"]}` {
			t.Fatalf("size %d: extra = %q", size, got)
		}
		want := "score,feedback,errors,suggestions,correctAnswer,extra"
		if got := strings.Join(res.ends, ","); got != want {
			t.Fatalf("size %d: ends = %s, want %s", size, got, want)
		}
	}
}

func TestFieldScanner_NonStringValuesOfTextKeys(t *testing.T) {
	res, _ := scanInPieces(`{"feedback": null, "errors": [1, true, "x"], "score": "80"}`, 1, "feedback", "errors")

	if got := res.raw["feedback"]; got != "null" {
		t.Fatalf("feedback raw = %q", got)
	}
	if got := res.text["errors"]; got != "1\ntrue\nx" {
		t.Fatalf("errors = %q", got)
	}
	if got := res.raw["score"]; got != `"80"` {
		t.Fatalf("score raw = %q", got)
	}
}

func TestFieldScanner_TruncatedInput(t *testing.T) {
	res, complete := scanInPieces(`{"score": 55, "feedback": "Fine so f`, 4, "feedback")

	if complete {
		t.Fatal("truncated object reported complete")
	}
	if res.raw["score"] != "55" {
		t.Fatalf("score raw = %q", res.raw["score"])
	}
	if res.text["feedback"] != "Fine so f" {
		t.Fatalf("feedback = %q", res.text["feedback"])
	}
	if strings.Join(res.ends, ",") != "score,feedback" {
		t.Fatalf("ends = %v", res.ends)
	}
}

func TestFieldScanner_TrailingScalarAtClose(t *testing.T) {
	res, _ := scanInPieces(`{"score": 9`, 0, "feedback")
	if res.raw["score"] != "9" {
		t.Fatalf("score raw = %q", res.raw["score"])
	}
}

func TestFieldScanner_IgnoresProse(t *testing.T) {
	res, complete := scanInPieces(`Here you go: {"feedback": "ok"} Hope this helps {"feedback": "no"}`, 3, "feedback")
	if !complete {
		t.Fatal("expected complete")
	}
	if res.text["feedback"] != "ok" {
		t.Fatalf("feedback = %q", res.text["feedback"])
	}
}

func TestFieldScanner_LoneSurrogate(t *testing.T) {
	res, _ := scanInPieces(`{"feedback": "a\ud83db\n"}`, 1, "feedback")
	if res.text["feedback"] != "a�b\n" {
		t.Fatalf("feedback = %q", res.text["feedback"])
	}
}

func TestWordChunker(t *testing.T) {
	tests := []struct {
		name   string
		pieces []string
		want   []string
		rest   string
	}{
		{"holds partial word", []string{"Nice tr", "y, almost"}, []string{"Nice ", "try, "}, "almost"},
		{"no whitespace", []string{"super", "cali"}, nil, "supercali"},
		{"newline boundary", []string{"one\ntw", "o\n"}, []string{"one\n", "two\n"}, ""},
		{"unicode space", []string{"a b"}, []string{"a "}, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c wordChunker
			var got []string
			for _, p := range tt.pieces {
				if out := c.Push(p); out != "" {
					got = append(got, out)
				}
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Fatalf("chunks = %q, want %q", got, tt.want)
			}
			if rest := c.Flush(); rest != tt.rest {
				t.Fatalf("rest = %q, want %q", rest, tt.rest)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		key  string
		raw  string
		want string
		ok   bool
	}{
		{"score", `72`, "72", true},
		{"score", `" 64 "`, "64", true},
		{"score", `"high"`, "", false},
		{"feedback", `"Good."`, "Good.", true},
		{"errors", `["a","b"]`, "a\nb", true},
		{"errors", `null`, "", true},
		{"examples", `"One.\n\nTwo."`, "[One. Two.]", true},
		{"examples", `{"x":1}`, "", false},
	}
	for _, tt := range tests {
		v, ok := normalize(wireKey(tt.key), []byte(tt.raw))
		if ok != tt.ok {
			t.Fatalf("normalize(%s, %s) ok = %v", tt.key, tt.raw, ok)
		}
		if ok && fmtValue(v) != tt.want {
			t.Fatalf("normalize(%s, %s) = %q, want %q", tt.key, tt.raw, fmtValue(v), tt.want)
		}
	}
}
