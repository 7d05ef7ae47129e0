// Package category is the category report family: code, name, parent name
// and sub-category count of every category.
package category

import (
	"context"

	"github.com/cuongbtq/report-export/internal/domain"
	"github.com/cuongbtq/report-export/internal/report"
)

// Kind is the export_type handled by this family
const Kind = "category"

// Labels used when a category has no parent or its parent is missing
const (
	MainCategoryLabel  = "Main Category"
	UnknownParentLabel = "Unknown"
)

// Filter keys understood by the category report
const (
	FilterName             = "name"
	FilterCategoryCode     = "categoryCode"
	FilterParentCategoryID = "parentCategoryId"
	FilterSubCategoryCount = "subCategoryCount"
)

// Row is one aggregated category record
type Row struct {
	ID                 int64   `db:"id"`
	CategoryCode       string  `db:"category_code"`
	Name               string  `db:"name"`
	ParentCategoryID   *int64  `db:"parent_category_id"`
	ParentCategoryName *string `db:"parent_category_name"`
	SubCategoryCount   int     `db:"sub_category_count"`
}

// ParentLabel is the rendered parent name
func (r Row) ParentLabel() string {
	switch {
	case r.ParentCategoryID == nil:
		return MainCategoryLabel
	case r.ParentCategoryName == nil:
		return UnknownParentLabel
	default:
		return *r.ParentCategoryName
	}
}

// Schema is the category report schema
var Schema = report.MustSchema(Kind,
	[]report.Column[Row]{
		{
			Name:    "CategoryCode",
			Label:   "Category Code",
			Value:   func(r Row) any { return r.CategoryCode },
			Compare: report.CompareBy(func(r Row) string { return r.CategoryCode }),
		},
		{
			Name:    "Name",
			Label:   "Category Name",
			Value:   func(r Row) any { return r.Name },
			Compare: report.CompareBy(func(r Row) string { return r.Name }),
		},
		{
			Name:    "ParentCategoryName",
			Label:   "Parent Category",
			Value:   func(r Row) any { return r.ParentLabel() },
			Compare: report.CompareBy(Row.ParentLabel),
		},
		{
			Name:    "SubCategoryCount",
			Label:   "Sub Category Count",
			Value:   func(r Row) any { return r.SubCategoryCount },
			Compare: report.CompareBy(func(r Row) int { return r.SubCategoryCount }),
		},
	},
	map[string]report.FilterFunc[Row]{
		FilterName:             report.Contains(func(r Row) string { return r.Name }),
		FilterCategoryCode:     report.Contains(func(r Row) string { return r.CategoryCode }),
		FilterParentCategoryID: report.NullableInt(func(r Row) *int64 { return r.ParentCategoryID }),
		FilterSubCategoryCount: report.CountBucket(func(r Row) int { return r.SubCategoryCount }),
	},
)

// Source fetches aggregated category rows. Implementations may push down any
// subset of the filters; the projector re-applies all of them.
type Source interface {
	FetchCategories(ctx context.Context, filters map[string]string) ([]Row, error)
}

// Family builds category reports from a Source
type Family struct {
	source Source
}

// NewFamily creates the category report family
func NewFamily(source Source) *Family {
	return &Family{source: source}
}

// Kind returns the export type
func (f *Family) Kind() string {
	return Kind
}

// Build fetches, filters, sorts and projects category rows
func (f *Family) Build(ctx context.Context, req report.Request) (*report.Table, error) {
	rows, err := f.source.FetchCategories(ctx, req.Filters)
	if err != nil {
		return nil, &domain.ProcessingError{
			Stage:      "fetch",
			ExportType: Kind,
			Err:        domain.NewRetryableError(err),
		}
	}

	return Schema.Apply(rows, req.Filters, req.Columns, req.SortKey, req.SortDirection), nil
}
