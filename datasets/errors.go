package datasets

import (
	"errors"
	"fmt"
)

// ErrMalformedLine is wrapped by every FormatError so callers can test for it with errors.Is.
var ErrMalformedLine = errors.New("malformed line")

// FormatError reports a line of an input file that could not be parsed.
type FormatError struct {
	Err  error
	Path string
	Line int // one based
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s:%d: %s: %v", e.Path, e.Line, ErrMalformedLine, e.Err)
}

func (e *FormatError) Unwrap() []error {
	return []error{ErrMalformedLine, e.Err}
}

func newFormatError(path string, lineIdx int, format string, args ...any) *FormatError {
	return &FormatError{Path: path, Line: lineIdx + 1, Err: fmt.Errorf(format, args...)}
}

// ReferenceError reports a triple whose query or passage id is missing from the loaded tables.
type ReferenceError struct {
	Kind     string // "query" or "passage"
	ID       int64
	Position int // index of the triple within the shard
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("triple %d references unknown %s id %d", e.Position, e.Kind, e.ID)
}
