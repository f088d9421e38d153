package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/abhisek/lexiz/internal/sanitize"
)

// ErrBlankLine is returned by ParseLine for empty lines and bare Markdown
// fence markers. Callers skip these without logging.
var ErrBlankLine = errors.New("blank line")

// MalformedFrameError reports a line that is not a valid frame. It is never
// fatal to the stream.
type MalformedFrameError struct {
	Line string
	Err  error
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame: %v", e.Err)
}

func (e *MalformedFrameError) Unwrap() error { return e.Err }

// LineSplitter turns arbitrarily chunked input into complete lines. A partial
// line stays buffered until its newline arrives.
type LineSplitter struct {
	buf []byte
}

// Feed appends chunk and returns every line completed by it, without the
// trailing "\n" or "\r\n".
func (s *LineSplitter) Feed(chunk []byte) []string {
	s.buf = append(s.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(s.buf[:i], []byte("\r"))
		lines = append(lines, string(line))
		s.buf = s.buf[i+1:]
	}

	// Reclaim the consumed prefix once nothing is pending.
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return lines
}

// Rest returns and clears whatever partial line is still buffered.
func (s *LineSplitter) Rest() string {
	rest := string(s.buf)
	s.buf = nil
	return rest
}

// ParseLine decodes one line into a Frame using the shared sanitizer rules.
func ParseLine(line string) (Frame, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || sanitize.IsFence(trimmed) {
		return Frame{}, ErrBlankLine
	}

	var f Frame
	if err := sanitize.Decode(trimmed, &f); err != nil {
		return Frame{}, &MalformedFrameError{Line: line, Err: err}
	}
	if !f.Event.Valid() {
		return Frame{}, &MalformedFrameError{Line: line, Err: fmt.Errorf("unknown event %q", f.Event)}
	}
	if f.Event == EventData && f.Key == "" {
		return Frame{}, &MalformedFrameError{Line: line, Err: errors.New("data frame without key")}
	}
	return f, nil
}
