package postgres

import (
	"errors"
	"fmt"

	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories"
	"gorm.io/gorm"
)

// SharedHelpers contains common database operations
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

var (
	resultSortColumns = map[string]bool{
		"graded_at":        true,
		"percentage_score": true,
		"created_at":       true,
	}
)

// ApplyResultFilters applies common filters to result queries
func (h *SharedHelpers) ApplyResultFilters(query *gorm.DB, filters repositories.ResultFilters) *gorm.DB {
	if filters.Passed != nil {
		query = query.Where("passed = ?", *filters.Passed)
	}
	if filters.DateFrom != nil {
		query = query.Where("graded_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("graded_at <= ?", *filters.DateTo)
	}
	return query
}

// ApplyPaginationAndSort applies pagination and sorting. Only whitelisted
// columns reach the ORDER BY clause.
func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, allowed map[string]bool, defaultColumn, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	if sortBy == "" || !allowed[sortBy] {
		sortBy = defaultColumn
	}

	if sortOrder != "asc" && sortOrder != "ASC" {
		sortOrder = "DESC"
	} else {
		sortOrder = "ASC"
	}

	// id as tie breaker keeps pages stable
	query = query.Order(sortBy + " " + sortOrder).Order("id " + sortOrder)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}

// notFoundOr maps gorm.ErrRecordNotFound to repositories.ErrNotFound and
// wraps everything else with op.
func notFoundOr(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repositories.ErrNotFound
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
