package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit   int       // max results (0 = unlimited)
	After   int64     // id > After
	Before  int64     // id < Before
	From    time.Time // timestamp >= From
	To      time.Time // timestamp <= To
	Purpose string    // exact purpose match (LLM events only)
}

// LLMRequestEventData captures the data for a single upstream call.
type LLMRequestEventData struct {
	RequestID    string
	Provider     string
	Model        string
	Purpose      string
	Streamed     bool
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMEvent is a stored LLMRequestEventData.
type LLMEvent struct {
	ID        int64
	Timestamp time.Time
	LLMRequestEventData
}

// CircuitEventData captures one breaker state transition.
type CircuitEventData struct {
	From     string
	To       string
	Failures int
	Reason   string
}

// CircuitEvent is a stored CircuitEventData.
type CircuitEvent struct {
	ID        int64
	Timestamp time.Time
	CircuitEventData
}

// EventRepo provides append access to events. Producers depend on this
// narrow interface; reporting commands use *Events directly.
type EventRepo interface {
	// AppendLLMRequest records an upstream API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// AppendCircuitTransition records a breaker state change.
	AppendCircuitTransition(ctx context.Context, data CircuitEventData) error
}

// Events implements EventRepo and the reporting queries.
type Events struct {
	db  *sql.DB
	now func() time.Time
}

var _ EventRepo = (*Events)(nil)

var llmEventColumns = []string{
	"id", "created_at", "request_id", "provider", "model", "purpose", "streamed",
	"input_tokens", "output_tokens", "latency_ms", "success", "error_message",
	"request_body", "response_body",
}

func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}

func (e *Events) AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error {
	query, args := builder().
		Insert(llmEventsTable).
		Columns(llmEventColumns[1:]...).
		Values(
			e.now().UTC().UnixMilli(), data.RequestID, data.Provider, data.Model, data.Purpose, data.Streamed,
			data.InputTokens, data.OutputTokens, data.LatencyMs, data.Success, data.ErrorMessage,
			data.RequestBody, data.ResponseBody,
		).
		Query()
	if _, err := e.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save LLM request event: %w", err)
	}
	return nil
}

func (e *Events) AppendCircuitTransition(ctx context.Context, data CircuitEventData) error {
	query, args := builder().
		Insert(circuitEventsTable).
		Columns("created_at", "from_state", "to_state", "failures", "reason").
		Values(e.now().UTC().UnixMilli(), data.From, data.To, data.Failures, data.Reason).
		Query()
	if _, err := e.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save circuit event: %w", err)
	}
	return nil
}

// QueryLLMEvents returns LLM events newest first.
func (e *Events) QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEvent, error) {
	sel := builder().Select(llmEventColumns...).From(entsql.Table(llmEventsTable))
	preds := opts.predicates()
	if opts.Purpose != "" {
		preds = append(preds, entsql.EQ("purpose", opts.Purpose))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	sel.OrderBy(entsql.Desc("id"))
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}

	query, args := sel.Query()
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query LLM events: %w", err)
	}
	defer rows.Close()

	var out []LLMEvent
	for rows.Next() {
		ev, err := scanLLMEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// GetLLMEvent returns a single event, or nil when id does not exist.
func (e *Events) GetLLMEvent(ctx context.Context, id int64) (*LLMEvent, error) {
	query, args := builder().
		Select(llmEventColumns...).
		From(entsql.Table(llmEventsTable)).
		Where(entsql.EQ("id", id)).
		Query()

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get LLM event: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	ev, err := scanLLMEvent(rows)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// QueryCircuitEvents returns breaker transitions newest first.
func (e *Events) QueryCircuitEvents(ctx context.Context, opts QueryOpts) ([]CircuitEvent, error) {
	sel := builder().
		Select("id", "created_at", "from_state", "to_state", "failures", "reason").
		From(entsql.Table(circuitEventsTable))
	if preds := opts.predicates(); len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	sel.OrderBy(entsql.Desc("id"))
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}

	query, args := sel.Query()
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query circuit events: %w", err)
	}
	defer rows.Close()

	var out []CircuitEvent
	for rows.Next() {
		var (
			ev CircuitEvent
			ms int64
		)
		if err := rows.Scan(&ev.ID, &ms, &ev.From, &ev.To, &ev.Failures, &ev.Reason); err != nil {
			return nil, fmt.Errorf("scan circuit event: %w", err)
		}
		ev.Timestamp = time.UnixMilli(ms).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// PruneBefore deletes events of both kinds older than cutoff and reports how
// many rows were removed.
func (e *Events) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, table := range []string{llmEventsTable, circuitEventsTable} {
		query, args := builder().
			Delete(table).
			Where(entsql.LT("created_at", cutoff.UTC().UnixMilli())).
			Query()
		res, err := e.db.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

func (o QueryOpts) predicates() []*entsql.Predicate {
	var preds []*entsql.Predicate
	if o.After > 0 {
		preds = append(preds, entsql.GT("id", o.After))
	}
	if o.Before > 0 {
		preds = append(preds, entsql.LT("id", o.Before))
	}
	if !o.From.IsZero() {
		preds = append(preds, entsql.GTE("created_at", o.From.UTC().UnixMilli()))
	}
	if !o.To.IsZero() {
		preds = append(preds, entsql.LTE("created_at", o.To.UTC().UnixMilli()))
	}
	return preds
}

func scanLLMEvent(rows *sql.Rows) (LLMEvent, error) {
	var (
		ev LLMEvent
		ms int64
	)
	err := rows.Scan(
		&ev.ID, &ms, &ev.RequestID, &ev.Provider, &ev.Model, &ev.Purpose, &ev.Streamed,
		&ev.InputTokens, &ev.OutputTokens, &ev.LatencyMs, &ev.Success, &ev.ErrorMessage,
		&ev.RequestBody, &ev.ResponseBody,
	)
	if err != nil {
		return LLMEvent{}, fmt.Errorf("scan LLM event: %w", err)
	}
	ev.Timestamp = time.UnixMilli(ms).UTC()
	return ev, nil
}
