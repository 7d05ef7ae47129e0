package report

import (
	"context"
	"fmt"
	"sort"
)

// Request is the shaping part of an export message
type Request struct {
	Filters       map[string]string
	Columns       []string
	SortKey       string
	SortDirection string
}

// Family builds the shaped table of one report kind
type Family interface {
	Kind() string
	Build(ctx context.Context, req Request) (*Table, error)
}

// Registry maps export types to report families
type Registry struct {
	families map[string]Family
}

// NewRegistry creates a registry, rejecting duplicate kinds
func NewRegistry(families ...Family) (*Registry, error) {
	r := &Registry{families: make(map[string]Family, len(families))}
	for _, f := range families {
		if _, dup := r.families[f.Kind()]; dup {
			return nil, fmt.Errorf("duplicate report family %q", f.Kind())
		}
		r.families[f.Kind()] = f
	}
	return r, nil
}

// Lookup returns the family registered for an export type
func (r *Registry) Lookup(kind string) (Family, bool) {
	f, ok := r.families[kind]
	return f, ok
}

// Kinds lists registered export types
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.families))
	for k := range r.families {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
