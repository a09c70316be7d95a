package store

import (
	"fmt"
	"strings"
	"unicode"
)

// Row is one key/value pair, equivalently one line of a table file.
type Row struct {
	Key   string
	Value string
}

// ParseRow parses a single line, without its terminator, as KEY " " VALUE.
func ParseRow(line string) (Row, error) {
	key, value, found := strings.Cut(line, " ")
	if !found {
		return Row{}, &ParseError{Text: line, Reason: "missing separator"}
	}
	if reason := checkToken(key); reason != "" {
		return Row{}, &ParseError{Text: line, Reason: "key " + reason}
	}
	if reason := checkToken(value); reason != "" {
		return Row{}, &ParseError{Text: line, Reason: "value " + reason}
	}
	return Row{Key: key, Value: value}, nil
}

// Validate reports whether both columns are non-empty and free of whitespace.
func (r Row) Validate() error {
	if reason := checkToken(r.Key); reason != "" {
		return fmt.Errorf("%w: key %q %s", ErrInvalidArgument, r.Key, reason)
	}
	if reason := checkToken(r.Value); reason != "" {
		return fmt.Errorf("%w: value %q %s", ErrInvalidArgument, r.Value, reason)
	}
	return nil
}

// String returns the row as it appears in a file, without the newline.
func (r Row) String() string {
	return r.Key + " " + r.Value
}

// checkToken returns why s cannot be a column, or "" when it can.
func checkToken(s string) string {
	if s == "" {
		return "is empty"
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return "contains whitespace"
	}
	return ""
}
