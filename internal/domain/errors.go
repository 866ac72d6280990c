package domain

import (
	"fmt"
	"strings"
)

// SourceNotFoundError reports a required input table that is missing or
// unreadable. It is fatal for the unit of work that needed the table.
type SourceNotFoundError struct {
	Source string // logical name, e.g. "delivery" or "weather"
	Key    string // object key or file path, when known
	Err    error
}

func (e *SourceNotFoundError) Error() string {
	var b strings.Builder
	b.WriteString(e.Source)
	b.WriteString(" source not found")
	if e.Key != "" {
		fmt.Fprintf(&b, ": %s", e.Key)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *SourceNotFoundError) Unwrap() error { return e.Err }

// SchemaError reports a required column that is absent, or a set of
// candidate columns none of which is present.
type SchemaError struct {
	Table      string
	Column     string   // set when a single required column is missing
	Candidates []string // set when no candidate matched
}

func (e *SchemaError) Error() string {
	if len(e.Candidates) > 0 {
		return fmt.Sprintf("%s table: none of the columns [%s] found", e.Table, strings.Join(e.Candidates, ", "))
	}
	return fmt.Sprintf("%s table: missing required column %q", e.Table, e.Column)
}

// ParseWarning describes rows dropped because a time-sensitive column could
// not be parsed. It is reported through an Observer, never returned as an error.
type ParseWarning struct {
	Table   string
	Column  string
	Dropped int
}

func (w ParseWarning) String() string {
	return fmt.Sprintf("%s.%s: %d unparseable rows dropped", w.Table, w.Column, w.Dropped)
}
