package postgres

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/quiz-grading-service/internal/cache"
	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories"
	"gorm.io/gorm"
)

type ResultPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
	hooks        *commitHooks
}

func newResultPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager, hooks *commitHooks) *ResultPostgreSQL {
	return &ResultPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cacheManager,
		hooks:        hooks,
	}
}

func (r *ResultPostgreSQL) Create(ctx context.Context, tx *gorm.DB, result *models.TestResult) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Create(result).Error; err != nil {
		if repositories.IsDuplicateError(err) {
			return fmt.Errorf("failed to create result: %w", repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create result: %w", err)
	}

	// a summary read before commit must not be cached past it
	testID := result.TestID
	r.hooks.add(func() {
		cache.InvalidateTestResults(ctx, r.cacheManager, testID)
	})
	return nil
}

// GetByAttemptID retrieves the result of an attempt. Results are immutable so
// they are cached for the full result TTL.
func (r *ResultPostgreSQL) GetByAttemptID(ctx context.Context, tx *gorm.DB, attemptID string) (*models.TestResult, error) {
	db := r.getDB(tx)
	fetch := func() (interface{}, error) {
		var result models.TestResult
		if err := db.WithContext(ctx).Where("attempt_id = ?", attemptID).First(&result).Error; err != nil {
			return nil, notFoundOr(err, "get result")
		}
		return &result, nil
	}

	if tx != nil {
		value, err := fetch()
		if err != nil {
			return nil, err
		}
		return value.(*models.TestResult), nil
	}

	var result models.TestResult
	if err := r.cacheManager.Result.CacheOrExecute(ctx, fmt.Sprintf("attempt:%s", attemptID), &result, cache.ResultCacheConfig.TTL, fetch); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *ResultPostgreSQL) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.ResultFilters) ([]*models.TestResult, int64, error) {
	query := r.getDB(tx).WithContext(ctx).Model(&models.TestResult{}).Where("student_id = ?", studentID)
	return r.list(query, filters)
}

func (r *ResultPostgreSQL) GetByTest(ctx context.Context, tx *gorm.DB, testID string, filters repositories.ResultFilters) ([]*models.TestResult, int64, error) {
	query := r.getDB(tx).WithContext(ctx).Model(&models.TestResult{}).Where("test_id = ?", testID)
	return r.list(query, filters)
}

func (r *ResultPostgreSQL) list(query *gorm.DB, filters repositories.ResultFilters) ([]*models.TestResult, int64, error) {
	query = r.helpers.ApplyResultFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count results: %w", err)
	}

	query = r.helpers.ApplyPaginationAndSort(query, resultSortColumns, "graded_at",
		filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var results []*models.TestResult
	if err := query.Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list results: %w", err)
	}
	return results, total, nil
}

// GetTestSummary aggregates all results of a test
func (r *ResultPostgreSQL) GetTestSummary(ctx context.Context, tx *gorm.DB, testID string) (*repositories.ResultSummary, error) {
	db := r.getDB(tx)
	var summary repositories.ResultSummary

	err := r.cacheManager.Result.CacheOrExecute(ctx, fmt.Sprintf("test:%s:summary", testID), &summary, cache.ResultCacheConfig.TTL, func() (interface{}, error) {
		var row struct {
			TotalResults      int
			PassedResults     int
			AveragePercentage float64
		}
		if err := db.WithContext(ctx).
			Model(&models.TestResult{}).
			Select("COUNT(*) AS total_results, " +
				"COALESCE(SUM(CASE WHEN passed THEN 1 ELSE 0 END), 0) AS passed_results, " +
				"COALESCE(AVG(percentage_score), 0) AS average_percentage").
			Where("test_id = ?", testID).
			Scan(&row).Error; err != nil {
			return nil, fmt.Errorf("failed to get result summary: %w", err)
		}

		s := &repositories.ResultSummary{
			TotalResults:      row.TotalResults,
			PassedResults:     row.PassedResults,
			AveragePercentage: row.AveragePercentage,
		}
		if s.TotalResults > 0 {
			s.PassRate = float64(s.PassedResults) / float64(s.TotalResults) * 100
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (r *ResultPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}
