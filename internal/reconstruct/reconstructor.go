package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/abhisek/lexiz/internal/wire"
)

// ErrTruncated is the error message recorded on an item whose stream ended
// before its End frame.
const ErrTruncated = "stream ended before the item completed"

// ErrInterrupted is recorded on an item that was still loading when the next
// Start frame arrived.
const ErrInterrupted = "item interrupted by the next item"

// Update is yielded after every processed frame.
type Update struct {
	// Index is the position of the item within the stream, starting at 0.
	Index int
	Item  Accumulator
	Frame wire.Frame
}

// Reconstructor turns arbitrarily chunked wire bytes into accumulators.
// It is not safe for concurrent use; one reader feeds one reconstructor.
type Reconstructor struct {
	lines    wire.LineSplitter
	items    []Accumulator
	open     bool
	skipped  int
	finished bool
	logger   *slog.Logger
}

// New creates a Reconstructor. A nil logger means slog.Default().
func New(logger *slog.Logger) *Reconstructor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconstructor{logger: logger.With("component", "reconstruct")}
}

// Feed consumes one network chunk and returns an update for every frame it
// completed. Partial lines are buffered until their newline arrives.
func (r *Reconstructor) Feed(chunk []byte) []Update {
	var updates []Update
	for _, line := range r.lines.Feed(chunk) {
		if u, ok := r.processLine(line); ok {
			updates = append(updates, u)
		}
	}
	return updates
}

// Finish processes a trailing line without newline and closes an item that
// is still loading. Call it once the body is exhausted.
func (r *Reconstructor) Finish() []Update {
	if r.finished {
		return nil
	}
	r.finished = true

	var updates []Update
	if rest := r.lines.Rest(); rest != "" {
		if u, ok := r.processLine(rest); ok {
			updates = append(updates, u)
		}
	}
	if r.open {
		cur := r.current()
		if cur.ErrorMessage == "" {
			cur.ErrorMessage = ErrTruncated
		}
		cur.finalize()
		r.open = false
		r.logger.Warn("stream truncated", "item", len(r.items)-1, "id", cur.ID)
		updates = append(updates, Update{Index: len(r.items) - 1, Item: cur.Clone(), Frame: wire.Fault(cur.ErrorMessage)})
	}
	return updates
}

// Items returns copies of every item seen so far, in stream order.
func (r *Reconstructor) Items() []Accumulator {
	out := make([]Accumulator, len(r.items))
	for i := range r.items {
		out[i] = r.items[i].Clone()
	}
	return out
}

// Skipped returns the number of malformed lines dropped.
func (r *Reconstructor) Skipped() int {
	return r.skipped
}

// ReadAll pulls body in reads of at most bufSize bytes, calling fn for each
// update, and finishes the stream at EOF. A read error still finishes the
// stream so no item is left loading.
func (r *Reconstructor) ReadAll(ctx context.Context, body io.Reader, bufSize int, fn func(Update)) error {
	if bufSize <= 0 {
		bufSize = 4096
	}
	buf := make([]byte, bufSize)
	emit := func(us []Update) {
		if fn == nil {
			return
		}
		for _, u := range us {
			fn(u)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			emit(r.Finish())
			return err
		}
		n, err := body.Read(buf)
		if n > 0 {
			emit(r.Feed(buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			emit(r.Finish())
			return nil
		}
		if err != nil {
			emit(r.Finish())
			return fmt.Errorf("read stream: %w", err)
		}
	}
}

func (r *Reconstructor) current() *Accumulator {
	return &r.items[len(r.items)-1]
}

func (r *Reconstructor) processLine(line string) (Update, bool) {
	f, err := wire.ParseLine(line)
	if errors.Is(err, wire.ErrBlankLine) {
		return Update{}, false
	}
	if err != nil {
		r.skipped++
		r.logger.Warn("skipping malformed frame", "line", truncate(line, 120), "error", err)
		return Update{}, false
	}

	switch f.Event {
	case wire.EventStart:
		if r.open {
			prev := r.current()
			if prev.ErrorMessage == "" {
				prev.ErrorMessage = ErrInterrupted
			}
			prev.finalize()
		}
		r.items = append(r.items, Accumulator{IsLoading: true})
		r.open = true

	case wire.EventData:
		if !r.open {
			r.logger.Debug("data frame outside an item", "key", f.Key)
			return Update{}, false
		}
		var ok bool
		switch {
		case f.Value != nil:
			ok = r.current().applyValue(f.Key, f.Value)
		case f.IsChunk():
			ok = r.current().applyChunk(f.Key, f.Chunk)
		}
		if !ok {
			r.logger.Debug("ignoring data frame", "key", f.Key)
			return Update{}, false
		}

	case wire.EventError:
		if !r.open {
			r.logger.Debug("error frame outside an item", "message", f.Message)
			return Update{}, false
		}
		r.current().ErrorMessage = f.Message

	case wire.EventEnd:
		if !r.open {
			return Update{}, false
		}
		r.current().finalize()
		r.open = false
	}

	return Update{Index: len(r.items) - 1, Item: r.current().Clone(), Frame: f}, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
