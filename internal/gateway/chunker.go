package gateway

import (
	"unicode"
	"unicode/utf8"
)

// wordChunker holds back the unfinished last word of a text field so every
// chunk it releases, except the final flush, ends in whitespace. Receivers
// insert a space between chunks that do not, so cutting anywhere else would
// change the text.
type wordChunker struct {
	buf string
}

// Push adds text and returns what can be sent now, possibly "".
func (c *wordChunker) Push(text string) string {
	c.buf += text
	i := lastSpaceEnd(c.buf)
	if i == 0 {
		return ""
	}
	out := c.buf[:i]
	c.buf = c.buf[i:]
	return out
}

// Flush returns whatever is held back.
func (c *wordChunker) Flush() string {
	out := c.buf
	c.buf = ""
	return out
}

// lastSpaceEnd returns the offset just past the last whitespace rune in s,
// or 0 when s has none.
func lastSpaceEnd(s string) int {
	for end := len(s); end > 0; {
		r, size := utf8.DecodeLastRuneInString(s[:end])
		if unicode.IsSpace(r) {
			return end
		}
		end -= size
	}
	return 0
}
