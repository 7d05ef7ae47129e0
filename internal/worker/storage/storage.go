package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/cuongbtq/report-export/internal/report"
	"github.com/cuongbtq/report-export/internal/report/category"
	"github.com/jmoiron/sqlx"
)

// CategoryStore reads aggregated category rows from PostgreSQL
type CategoryStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewCategoryStore creates a new CategoryStore instance
func NewCategoryStore(db *sqlx.DB, logger *slog.Logger) *CategoryStore {
	return &CategoryStore{
		db:     db,
		logger: logger,
	}
}

// FetchCategories loads categories with their parent name and direct
// sub-category count. name, categoryCode and parentCategoryId are pushed
// down; subCategoryCount is left to the projector.
func (s *CategoryStore) FetchCategories(ctx context.Context, filters map[string]string) ([]category.Row, error) {
	query, args, err := buildCategoryQuery(filters).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build category query: %w", err)
	}

	var rows []category.Row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select categories: %w", err)
	}

	s.logger.Debug("Categories fetched",
		slog.Int("count", len(rows)),
		slog.Int("pushed_down_args", len(args)),
	)

	return rows, nil
}

func buildCategoryQuery(filters map[string]string) sq.SelectBuilder {
	q := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select(
			"c.id",
			"c.category_code",
			"c.name",
			"c.parent_category_id",
			"p.name AS parent_category_name",
			"(SELECT COUNT(*) FROM categories s WHERE s.parent_category_id = c.id) AS sub_category_count",
		).
		From("categories c").
		LeftJoin("categories p ON p.id = c.parent_category_id").
		OrderBy("c.id")

	// strpos keeps the match case-sensitive and free of LIKE wildcards
	if v := filters[category.FilterName]; strings.TrimSpace(v) != "" {
		q = q.Where("strpos(c.name, ?) > 0", v)
	}
	if v := filters[category.FilterCategoryCode]; strings.TrimSpace(v) != "" {
		q = q.Where("strpos(c.category_code, ?) > 0", v)
	}

	if v, ok := filters[category.FilterParentCategoryID]; ok {
		v = strings.TrimSpace(v)
		if v == report.NullFilterValue {
			q = q.Where(sq.Eq{"c.parent_category_id": nil})
		} else if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			q = q.Where(sq.Eq{"c.parent_category_id": id})
		}
	}

	return q
}
