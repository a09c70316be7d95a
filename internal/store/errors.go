package store

import (
	"errors"
	"fmt"
)

var (
	// ErrIO is wrapped around every failure to create, read or write the backing file.
	ErrIO = errors.New("table i/o error")
	// ErrParse is matched by every *ParseError.
	ErrParse = errors.New("malformed table file")
	// ErrInvalidArgument is returned when a key or value breaks the row grammar.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrClosed is returned by operations on a table that is not open.
	ErrClosed = errors.New("table is not open")
)

// ParseError reports a line of a table file that does not follow the grammar.
type ParseError struct {
	Path   string // empty when parsing a single row
	Line   int    // 1-based, 0 when unknown
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %s: %q", e.Path, e.Line, e.Reason, e.Text)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
	default:
		return fmt.Sprintf("%s: %q", e.Reason, e.Text)
	}
}

// Is lets errors.Is(err, ErrParse) match any ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}
