package gateway

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// fieldEvent is one observation from the field scanner. Streamed fields
// produce any number of Text events followed by one event with End set.
// Other fields produce a single event carrying Raw with End set.
type fieldEvent struct {
	Key  string
	Text string
	Raw  json.RawMessage
	End  bool
}

type scanState int

const (
	seekObject scanState = iota
	seekKey
	inKey
	seekColon
	seekValue
	inText
	inTextArray
	inArrayString
	inArrayRaw
	inRaw
	afterValue
	scanDone
)

// fieldScanner follows a JSON object as its text arrives in arbitrary
// pieces and reports top-level fields without waiting for the document to
// close. String values of text keys are decoded and streamed; arrays of
// strings under text keys are streamed with elements joined by "\n".
// Everything else is collected and reported whole.
//
// Text before the opening brace (prose, a ```json fence) is ignored, as is
// anything after the closing brace.
type fieldScanner struct {
	textKeys map[string]bool

	state    scanState
	key      []byte
	keyEsc   bool
	field    string
	items    int
	str      stringDecoder
	raw      rawValue
	text     strings.Builder
	events   []fieldEvent
	complete bool
}

func newFieldScanner(textKeys ...string) *fieldScanner {
	s := &fieldScanner{textKeys: make(map[string]bool, len(textKeys))}
	for _, k := range textKeys {
		s.textKeys[k] = true
	}
	return s
}

// Feed consumes the next piece of upstream text.
func (s *fieldScanner) Feed(piece string) []fieldEvent {
	s.events = s.events[:0]
	for i := 0; i < len(piece); i++ {
		s.step(piece[i])
	}
	s.flushText()
	return s.events
}

// Close ends the input. A string or scalar cut off by the end of the stream
// is reported as complete so no field is left open.
func (s *fieldScanner) Close() []fieldEvent {
	s.events = s.events[:0]
	switch s.state {
	case inText, inTextArray, inArrayString:
		s.str.reset()
		s.endText()
	case inArrayRaw:
		s.text.Write(s.raw.buf)
		s.raw = rawValue{}
		s.endText()
	case inRaw:
		if s.raw.scalar && json.Valid(s.raw.buf) {
			s.endRaw()
		}
	}
	s.state = scanDone
	return s.events
}

// Complete reports whether the closing brace of the object was seen.
func (s *fieldScanner) Complete() bool { return s.complete }

func (s *fieldScanner) step(b byte) {
	switch s.state {
	case seekObject:
		if b == '{' {
			s.state = seekKey
		}

	case seekKey:
		switch b {
		case '"':
			s.key = s.key[:0]
			s.keyEsc = false
			s.state = inKey
		case '}':
			s.finish()
		}

	case inKey:
		switch {
		case s.keyEsc:
			s.keyEsc = false
			s.key = append(s.key, b)
		case b == '\\':
			s.keyEsc = true
			s.key = append(s.key, b)
		case b == '"':
			s.field = decodeKey(s.key)
			s.state = seekColon
		default:
			s.key = append(s.key, b)
		}

	case seekColon:
		if b == ':' {
			s.state = seekValue
		}

	case seekValue:
		if isSpace(b) {
			return
		}
		if s.textKeys[s.field] {
			switch b {
			case '"':
				s.str.reset()
				s.state = inText
				return
			case '[':
				s.items = 0
				s.state = inTextArray
				return
			}
		}
		s.raw = rawValue{}
		s.state = inRaw
		s.stepRaw(b)

	case inText:
		if s.str.add(b, &s.text) {
			s.endText()
		}

	case inTextArray:
		switch {
		case isSpace(b) || b == ',':
		case b == ']':
			s.endText()
		case b == '"':
			s.startElement()
			s.str.reset()
			s.state = inArrayString
		default:
			s.startElement()
			s.raw = rawValue{}
			s.state = inArrayRaw
			s.stepArrayRaw(b)
		}

	case inArrayString:
		if s.str.add(b, &s.text) {
			s.state = inTextArray
		}

	case inArrayRaw:
		s.stepArrayRaw(b)

	case inRaw:
		s.stepRaw(b)

	case afterValue:
		switch b {
		case ',':
			s.state = seekKey
		case '}':
			s.finish()
		}
	}
}

func (s *fieldScanner) stepRaw(b byte) {
	done, consumed := s.raw.add(b)
	if !done {
		return
	}
	s.endRaw()
	if !consumed {
		s.step(b)
	}
}

func (s *fieldScanner) stepArrayRaw(b byte) {
	done, consumed := s.raw.add(b)
	if !done {
		return
	}
	s.text.Write(s.raw.buf)
	s.raw = rawValue{}
	s.state = inTextArray
	if !consumed {
		s.step(b)
	}
}

func (s *fieldScanner) startElement() {
	if s.items > 0 {
		s.text.WriteByte('\n')
	}
	s.items++
}

func (s *fieldScanner) flushText() {
	if s.text.Len() == 0 {
		return
	}
	s.events = append(s.events, fieldEvent{Key: s.field, Text: s.text.String()})
	s.text.Reset()
}

func (s *fieldScanner) endText() {
	s.flushText()
	s.events = append(s.events, fieldEvent{Key: s.field, End: true})
	s.state = afterValue
}

func (s *fieldScanner) endRaw() {
	raw := make(json.RawMessage, len(s.raw.buf))
	copy(raw, s.raw.buf)
	s.events = append(s.events, fieldEvent{Key: s.field, Raw: raw, End: true})
	s.raw = rawValue{}
	s.state = afterValue
}

func (s *fieldScanner) finish() {
	s.complete = true
	s.state = scanDone
}

func decodeKey(raw []byte) string {
	var k string
	if err := json.Unmarshal(append(append([]byte{'"'}, raw...), '"'), &k); err != nil {
		return string(raw)
	}
	return k
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// rawValue collects one JSON value byte by byte, tracking nesting and
// strings so it knows where the value ends.
type rawValue struct {
	buf    []byte
	depth  int
	inStr  bool
	esc    bool
	scalar bool
}

// add consumes b and reports whether the value is complete. consumed is
// false when b terminated a scalar and belongs to whatever follows it.
func (r *rawValue) add(b byte) (done, consumed bool) {
	if len(r.buf) == 0 {
		r.buf = append(r.buf, b)
		switch b {
		case '{', '[':
			r.depth = 1
		case '"':
			r.inStr = true
		default:
			r.scalar = true
		}
		return false, true
	}

	if r.scalar {
		switch b {
		case ',', '}', ']', ' ', '\t', '\n', '\r':
			return true, false
		}
		r.buf = append(r.buf, b)
		return false, true
	}

	r.buf = append(r.buf, b)
	if r.inStr {
		switch {
		case r.esc:
			r.esc = false
		case b == '\\':
			r.esc = true
		case b == '"':
			r.inStr = false
			if r.depth == 0 {
				return true, true
			}
		}
		return false, true
	}

	switch b {
	case '"':
		r.inStr = true
	case '{', '[':
		r.depth++
	case '}', ']':
		r.depth--
		if r.depth == 0 {
			return true, true
		}
	}
	return false, true
}

// stringDecoder unescapes the body of a JSON string one byte at a time.
// Escape sequences split across pieces are held until complete.
type stringDecoder struct {
	esc []byte
}

func (d *stringDecoder) reset() { d.esc = d.esc[:0] }

// add decodes b into out and reports whether b was the closing quote.
func (d *stringDecoder) add(b byte, out *strings.Builder) bool {
	if len(d.esc) == 0 {
		switch b {
		case '\\':
			d.esc = append(d.esc, b)
		case '"':
			return true
		default:
			out.WriteByte(b)
		}
		return false
	}

	d.esc = append(d.esc, b)
	if d.esc[1] != 'u' {
		out.WriteString(simpleEscape(d.esc[1]))
		d.reset()
		return false
	}

	switch n := len(d.esc); {
	case n < 6:
	case n == 6:
		r := hexRune(d.esc[2:6])
		if !utf16.IsSurrogate(r) || r >= 0xDC00 {
			writeRune(out, r)
			d.reset()
		}
	case n == 7 && b != '\\', n == 8 && b != 'u':
		// A high surrogate not followed by a \u escape.
		out.WriteRune(utf8.RuneError)
		d.reset()
		if n == 8 {
			d.esc = append(d.esc, '\\')
		}
		return d.add(b, out)
	case n == 12:
		writeRune(out, utf16.DecodeRune(hexRune(d.esc[2:6]), hexRune(d.esc[8:12])))
		d.reset()
	}
	return false
}

func simpleEscape(c byte) string {
	switch c {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case 'b':
		return "\b"
	case 'f':
		return "\f"
	}
	// \" \\ \/ and anything unknown stand for themselves.
	return string(c)
}

func hexRune(h []byte) rune {
	v, err := strconv.ParseUint(string(h), 16, 32)
	if err != nil {
		return utf8.RuneError
	}
	return rune(v)
}

func writeRune(out *strings.Builder, r rune) {
	if !utf8.ValidRune(r) {
		r = utf8.RuneError
	}
	out.WriteRune(r)
}
