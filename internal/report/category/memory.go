package category

import "context"

// Category is a raw category record before aggregation
type Category struct {
	ID               int64
	CategoryCode     string
	Name             string
	ParentCategoryID *int64
}

// Aggregate resolves parent names and counts direct sub-categories across
// the whole set, keeping input order.
func Aggregate(categories []Category) []Row {
	names := make(map[int64]string, len(categories))
	counts := make(map[int64]int, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
		if c.ParentCategoryID != nil {
			counts[*c.ParentCategoryID]++
		}
	}

	rows := make([]Row, len(categories))
	for i, c := range categories {
		row := Row{
			ID:               c.ID,
			CategoryCode:     c.CategoryCode,
			Name:             c.Name,
			ParentCategoryID: c.ParentCategoryID,
			SubCategoryCount: counts[c.ID],
		}
		if c.ParentCategoryID != nil {
			if name, ok := names[*c.ParentCategoryID]; ok {
				row.ParentCategoryName = &name
			}
		}
		rows[i] = row
	}
	return rows
}

// MemorySource serves a fixed category set without any pushdown
type MemorySource struct {
	rows []Row
}

// NewMemorySource aggregates categories once
func NewMemorySource(categories []Category) *MemorySource {
	return &MemorySource{rows: Aggregate(categories)}
}

// FetchCategories returns a copy of all rows
func (s *MemorySource) FetchCategories(ctx context.Context, _ map[string]string) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := make([]Row, len(s.rows))
	copy(rows, s.rows)
	return rows, nil
}
