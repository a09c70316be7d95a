// Package store contains the file-backed table: a string to string mapping
// loaded from a line-oriented text file when opened, changed in memory and
// written back on Flush or Close.
//
// A table file is a sequence of rows, each a key and a value separated by a
// single space and terminated by "\n" or "\r\n":
//
//	FILE    ::= ROW*
//	ROW     ::= KEY " " VALUE NEWLINE
//	KEY     ::= non-empty, no whitespace
//	VALUE   ::= non-empty, no whitespace
//	NEWLINE ::= "\n" | "\r\n"
//
// An empty file is an empty table. Rows are always written sorted by key and
// terminated by "\n", so a table serializes to the same bytes every time.
package store

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/ASHISH26940/cocoabot/internal/persistence"
)

// Table is a file-backed key/value mapping.
//
// Table is safe for concurrent use; each call is atomic, sequences of calls
// are not. The zero value is a table that was never opened and every
// operation on it returns ErrClosed.
type Table struct {
	mu     sync.RWMutex
	path   string
	file   *persistence.File
	data   map[string]string
	dirty  bool
	closed bool
}

// Open opens the table stored at path, creating an empty file when none
// exists. The whole file is parsed before Open returns; a line that breaks
// the grammar fails Open with a *ParseError and nothing is kept open.
func Open(path string) (*Table, error) {
	f, err := persistence.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}
	content, err := f.ReadAll()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, path, err)
	}
	data, err := parse(path, content)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Table{path: path, file: f, data: data}, nil
}

// parse turns file content into a mapping, failing on the first bad line.
func parse(path string, content []byte) (map[string]string, error) {
	data := make(map[string]string)
	if len(content) == 0 {
		return data, nil
	}
	if !utf8.Valid(content) {
		return nil, &ParseError{Path: path, Reason: "invalid UTF-8"}
	}
	text := string(content)
	lines := strings.Split(text, "\n")
	if last := lines[len(lines)-1]; last != "" {
		return nil, &ParseError{Path: path, Line: len(lines), Text: last, Reason: "missing newline"}
	}
	lines = lines[:len(lines)-1]

	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		row, err := ParseRow(line)
		if err != nil {
			var perr *ParseError
			if errors.As(err, &perr) {
				perr.Path, perr.Line = path, i+1
			}
			return nil, err
		}
		if _, dup := data[row.Key]; dup {
			return nil, &ParseError{Path: path, Line: i + 1, Text: line, Reason: "duplicate key"}
		}
		data[row.Key] = row.Value
	}
	return data, nil
}

// Path returns the backing file path.
func (t *Table) Path() string {
	return t.path
}

func (t *Table) usable() error {
	if t.file == nil || t.closed {
		return ErrClosed
	}
	return nil
}

// Get returns the value stored under key and whether it exists.
func (t *Table) Get(key string) (string, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.usable(); err != nil {
		return "", false, err
	}
	value, ok := t.data[key]
	return value, ok, nil
}

// Put inserts or replaces the value under key. It only changes memory; the
// file is updated by the next Flush or Close.
func (t *Table) Put(key, value string) error {
	row := Row{Key: key, Value: value}
	if err := row.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	if old, ok := t.data[key]; ok && old == value {
		return nil
	}
	t.data[key] = value
	t.dirty = true
	return nil
}

// Remove deletes key, reporting whether it was present.
func (t *Table) Remove(key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return false, err
	}
	if _, ok := t.data[key]; !ok {
		return false, nil
	}
	delete(t.data, key)
	t.dirty = true
	return true, nil
}

// Size returns the number of rows.
func (t *Table) Size() (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.usable(); err != nil {
		return 0, err
	}
	return len(t.data), nil
}

// Keys returns all keys in ascending order.
func (t *Table) Keys() ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.usable(); err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(t.data)), nil
}

// ToMap returns a copy of the mapping.
func (t *Table) ToMap() (map[string]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.usable(); err != nil {
		return nil, err
	}
	return maps.Clone(t.data), nil
}

// Serialize returns the exact text Flush would write.
func (t *Table) Serialize() (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.usable(); err != nil {
		return "", err
	}
	return t.serializeLocked(), nil
}

func (t *Table) serializeLocked() string {
	var b strings.Builder
	for _, key := range slices.Sorted(maps.Keys(t.data)) {
		b.WriteString(Row{Key: key, Value: t.data[key]}.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Flush writes the mapping to the backing file if it changed since the last
// load or flush.
func (t *Table) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	return t.flushLocked()
}

func (t *Table) flushLocked() error {
	if !t.dirty {
		return nil
	}
	if err := t.file.Rewrite([]byte(t.serializeLocked())); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, t.path, err)
	}
	t.dirty = false
	return nil
}

// Close flushes pending changes and releases the file. The file is released
// even when the flush fails. Calling Close again returns ErrClosed.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	t.closed = true
	flushErr := t.flushLocked()
	if err := t.file.Close(); err != nil {
		return errors.Join(flushErr, fmt.Errorf("%w: close %s: %w", ErrIO, t.path, err))
	}
	return flushErr
}

// SameValue reports whether both tables hold the same key/value pairs,
// regardless of their paths. A closed table compares by the contents it had
// when it was closed.
func (t *Table) SameValue(other *Table) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil {
		return false
	}
	return maps.Equal(t.snapshot(), other.snapshot())
}

func (t *Table) snapshot() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.data)
}

func (t *Table) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fmt.Sprintf("Table(%s, %d rows)", t.path, len(t.data))
}
