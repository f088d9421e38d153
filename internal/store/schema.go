package store

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	llmEventsTable     = "llm_request_events"
	circuitEventsTable = "circuit_events"
)

var (
	// LLMRequestEventsColumns holds the columns for the "llm_request_events" table.
	LLMRequestEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "created_at", Type: field.TypeInt64, Comment: "Unix milliseconds, UTC"},
		{Name: "request_id", Type: field.TypeString, Default: ""},
		{Name: "provider", Type: field.TypeString},
		{Name: "model", Type: field.TypeString},
		{Name: "purpose", Type: field.TypeString},
		{Name: "streamed", Type: field.TypeBool, Default: false},
		{Name: "input_tokens", Type: field.TypeInt, Default: 0},
		{Name: "output_tokens", Type: field.TypeInt, Default: 0},
		{Name: "latency_ms", Type: field.TypeInt64, Default: 0},
		{Name: "success", Type: field.TypeBool},
		{Name: "error_message", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "request_body", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "response_body", Type: field.TypeString, Size: 2147483647, Default: ""},
	}
	// LLMRequestEventsTable holds the schema information for the "llm_request_events" table.
	LLMRequestEventsTable = &schema.Table{
		Name:       llmEventsTable,
		Columns:    LLMRequestEventsColumns,
		PrimaryKey: []*schema.Column{LLMRequestEventsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "llmrequestevent_created_at", Columns: []*schema.Column{LLMRequestEventsColumns[1]}},
			{Name: "llmrequestevent_purpose", Columns: []*schema.Column{LLMRequestEventsColumns[5]}},
			{Name: "llmrequestevent_success", Columns: []*schema.Column{LLMRequestEventsColumns[10]}},
		},
	}

	// CircuitEventsColumns holds the columns for the "circuit_events" table.
	CircuitEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "created_at", Type: field.TypeInt64, Comment: "Unix milliseconds, UTC"},
		{Name: "from_state", Type: field.TypeString},
		{Name: "to_state", Type: field.TypeString},
		{Name: "failures", Type: field.TypeInt, Default: 0},
		{Name: "reason", Type: field.TypeString, Size: 2147483647, Default: ""},
	}
	// CircuitEventsTable holds the schema information for the "circuit_events" table.
	CircuitEventsTable = &schema.Table{
		Name:       circuitEventsTable,
		Columns:    CircuitEventsColumns,
		PrimaryKey: []*schema.Column{CircuitEventsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "circuitevent_created_at", Columns: []*schema.Column{CircuitEventsColumns[1]}},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		LLMRequestEventsTable,
		CircuitEventsTable,
	}
)
