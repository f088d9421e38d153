package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// ContentType is the media type of a frame stream.
const ContentType = "text/plain; charset=utf-8"

type flusher interface {
	Flush()
}

// Encoder writes frames as JSON lines and flushes after each one when the
// underlying writer supports it (http.ResponseWriter, gin.ResponseWriter).
type Encoder struct {
	w       io.Writer
	flush   flusher
	buf     bytes.Buffer
	enc     *json.Encoder
	frames  int
	onFrame func(Frame)
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w}
	if f, ok := w.(flusher); ok {
		e.flush = f
	}
	e.enc = json.NewEncoder(&e.buf)
	e.enc.SetEscapeHTML(false)
	return e
}

// OnFrame registers a callback invoked after each frame is written.
func (e *Encoder) OnFrame(fn func(Frame)) {
	e.onFrame = fn
}

// Encode serializes one frame followed by a newline.
func (e *Encoder) Encode(f Frame) error {
	e.buf.Reset()
	// json.Encoder terminates every value with '\n'.
	if err := e.enc.Encode(f); err != nil {
		return fmt.Errorf("encode %s frame: %w", f.Event, err)
	}
	if _, err := e.w.Write(e.buf.Bytes()); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Event, err)
	}
	if e.flush != nil {
		e.flush.Flush()
	}
	e.frames++
	if e.onFrame != nil {
		e.onFrame(f)
	}
	return nil
}

// Frames returns the number of frames written so far.
func (e *Encoder) Frames() int {
	return e.frames
}
