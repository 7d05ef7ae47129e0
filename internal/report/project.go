package report

import (
	"slices"
	"strings"
)

// Table is the shaped output of a projection, ready for rendering
type Table struct {
	Kind    string
	Columns []string
	Labels  []string
	Rows    [][]any
}

// Len returns the number of body rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// Shape is the validated, typed form of a shaping request. It is built per
// message and discarded after rendering.
type Shape[T any] struct {
	predicates []Predicate[T]
	columns    []int
	sortColumn int
	descending bool
}

// Shape resolves raw filters, a column list and a sort instruction against
// the schema. Nothing here fails: unknown filters, empty filter values and
// unresolvable column names are dropped, an unresolvable sort key disables
// sorting.
func (s *Schema[T]) Shape(filters map[string]string, columns []string, sortKey, sortDirection string) *Shape[T] {
	sh := &Shape[T]{sortColumn: -1}

	// map iteration order does not matter, predicates are conjunctive
	for key, value := range filters {
		parse, ok := s.filters[key]
		if !ok {
			continue
		}
		if pred, ok := parse(value); ok {
			sh.predicates = append(sh.predicates, pred)
		}
	}

	if len(columns) == 0 {
		sh.columns = make([]int, len(s.columns))
		for i := range s.columns {
			sh.columns[i] = i
		}
	} else {
		sh.columns = make([]int, 0, len(columns))
		for _, name := range columns {
			if i, ok := s.lookup(name); ok {
				sh.columns = append(sh.columns, i)
			}
		}
	}

	if sortKey != "" {
		if i, ok := s.lookup(sortKey); ok {
			sh.sortColumn = i
			sh.descending = strings.EqualFold(strings.TrimSpace(sortDirection), "desc")
		}
	}

	return sh
}

// Project filters, sorts and projects rows. The input slice is not modified.
func (s *Schema[T]) Project(rows []T, sh *Shape[T]) *Table {
	kept := make([]T, 0, len(rows))
	for _, row := range rows {
		if sh.match(row) {
			kept = append(kept, row)
		}
	}

	if sh.sortColumn >= 0 {
		compare := s.columns[sh.sortColumn].Compare
		if sh.descending {
			asc := compare
			compare = func(a, b T) int { return asc(b, a) }
		}
		slices.SortStableFunc(kept, compare)
	}

	table := &Table{
		Kind:    s.kind,
		Columns: make([]string, len(sh.columns)),
		Labels:  make([]string, len(sh.columns)),
		Rows:    make([][]any, len(kept)),
	}
	for i, idx := range sh.columns {
		col := s.columns[idx]
		table.Columns[i] = col.Name
		table.Labels[i] = col.Label
		if col.Label == "" {
			table.Labels[i] = col.Name
		}
	}
	for r, row := range kept {
		cells := make([]any, len(sh.columns))
		for i, idx := range sh.columns {
			cells[i] = s.columns[idx].Value(row)
		}
		table.Rows[r] = cells
	}

	return table
}

// Apply is Shape followed by Project
func (s *Schema[T]) Apply(rows []T, filters map[string]string, columns []string, sortKey, sortDirection string) *Table {
	return s.Project(rows, s.Shape(filters, columns, sortKey, sortDirection))
}

func (sh *Shape[T]) match(row T) bool {
	for _, pred := range sh.predicates {
		if !pred(row) {
			return false
		}
	}
	return true
}
