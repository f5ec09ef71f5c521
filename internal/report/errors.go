package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMissingColumn is matched by MissingColumnError.
	ErrMissingColumn = errors.New("missing column")
	// ErrEmptyReport means the body had no header row.
	ErrEmptyReport = errors.New("empty report")
)

// MissingColumnError lists the feed headers the schema needs but the CSV lacks.
type MissingColumnError struct {
	Columns []string
}

func (e *MissingColumnError) Error() string {
	quoted := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		quoted[i] = strconv.Quote(c)
	}
	return fmt.Sprintf("missing column: %s not in report", strings.Join(quoted, ", "))
}

func (e *MissingColumnError) Is(target error) bool {
	return target == ErrMissingColumn
}

// ParseError is a cell that could not be read as its column type, or a
// malformed record.
type ParseError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("report line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("report line %d, column %q: value %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
