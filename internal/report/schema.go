// Package report turns stringly-typed shaping instructions (filters, column
// list, sort key) into typed operations over report rows.
package report

import (
	"errors"
	"fmt"
	"strings"
)

// Column describes one exportable field of a row type
type Column[T any] struct {
	// Name is the identifier used in column lists and sort keys
	Name string
	// Label is the human readable header, Name when empty
	Label string
	// Value extracts the cell value
	Value func(T) any
	// Compare orders two rows by this column, negative when a < b
	Compare func(a, b T) int
}

// Predicate reports whether a row passes a filter
type Predicate[T any] func(T) bool

// FilterFunc parses a raw filter value into a predicate. ok is false when the
// value should be ignored (empty or not understood).
type FilterFunc[T any] func(value string) (pred Predicate[T], ok bool)

// Schema is the fixed column set and filter vocabulary of one report family
type Schema[T any] struct {
	kind    string
	columns []Column[T]
	byName  map[string]int
	filters map[string]FilterFunc[T]
}

// NewSchema validates the column set once so that shaping never has to fail
func NewSchema[T any](kind string, columns []Column[T], filters map[string]FilterFunc[T]) (*Schema[T], error) {
	if kind == "" {
		return nil, errors.New("schema kind is required")
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("schema %s: at least one column is required", kind)
	}

	byName := make(map[string]int, len(columns))
	for i, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("schema %s: column %d has no name", kind, i)
		}
		if col.Value == nil || col.Compare == nil {
			return nil, fmt.Errorf("schema %s: column %s needs Value and Compare", kind, col.Name)
		}
		key := strings.ToLower(col.Name)
		if _, dup := byName[key]; dup {
			return nil, fmt.Errorf("schema %s: duplicate column %s", kind, col.Name)
		}
		byName[key] = i
	}

	for key, fn := range filters {
		if fn == nil {
			return nil, fmt.Errorf("schema %s: filter %s is nil", kind, key)
		}
	}

	return &Schema[T]{
		kind:    kind,
		columns: columns,
		byName:  byName,
		filters: filters,
	}, nil
}

// MustSchema is NewSchema for package-level schema definitions
func MustSchema[T any](kind string, columns []Column[T], filters map[string]FilterFunc[T]) *Schema[T] {
	s, err := NewSchema(kind, columns, filters)
	if err != nil {
		panic(err)
	}
	return s
}

// Kind returns the report family tag
func (s *Schema[T]) Kind() string {
	return s.kind
}

// ColumnNames returns all column names in declared order
func (s *Schema[T]) ColumnNames() []string {
	names := make([]string, len(s.columns))
	for i, col := range s.columns {
		names[i] = col.Name
	}
	return names
}

// lookup resolves a column name case-insensitively
func (s *Schema[T]) lookup(name string) (int, bool) {
	i, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}
