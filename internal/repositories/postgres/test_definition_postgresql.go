package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SAP-F-2025/quiz-grading-service/internal/cache"
	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories"
	"gorm.io/gorm"
)

type TestPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
	hooks        *commitHooks
}

func newTestPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager, hooks *commitHooks) *TestPostgreSQL {
	return &TestPostgreSQL{
		db:           db,
		cacheManager: cacheManager,
		hooks:        hooks,
	}
}

// Create inserts a test definition and drops any stale cache entry
func (t *TestPostgreSQL) Create(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	db := t.getDB(tx)
	if err := db.WithContext(ctx).Create(test).Error; err != nil {
		if repositories.IsDuplicateError(err) {
			return fmt.Errorf("failed to create test: %w", repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create test: %w", err)
	}

	testID := test.ID
	t.hooks.add(func() {
		cache.InvalidateTest(ctx, t.cacheManager, testID)
	})
	return nil
}

// GetByID retrieves a test by ID with caching
func (t *TestPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Test, error) {
	db := t.getDB(tx)
	fetch := func() (interface{}, error) {
		var test models.Test
		if err := db.WithContext(ctx).Where("id = ?", id).First(&test).Error; err != nil {
			return nil, notFoundOr(err, "get test")
		}
		return &test, nil
	}

	// reads inside a transaction bypass the cache
	if tx != nil {
		value, err := fetch()
		if err != nil {
			return nil, err
		}
		return value.(*models.Test), nil
	}

	var test models.Test
	if err := t.cacheManager.Test.CacheOrExecute(ctx, fmt.Sprintf("id:%s", id), &test, cache.TestCacheConfig.TTL, fetch); err != nil {
		return nil, err
	}
	return &test, nil
}

// List returns tests matching the filters, newest first
func (t *TestPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.TestFilters) ([]*models.Test, error) {
	query := t.getDB(tx).WithContext(ctx).Model(&models.Test{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	query = query.Order("created_at DESC").Order("id DESC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var tests []*models.Test
	if err := query.Find(&tests).Error; err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	return tests, nil
}

func (t *TestPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return t.db
}

type QuestionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
	hooks        *commitHooks
}

func newQuestionPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager, hooks *commitHooks) *QuestionPostgreSQL {
	return &QuestionPostgreSQL{
		db:           db,
		cacheManager: cacheManager,
		hooks:        hooks,
	}
}

// CreateBatch inserts questions in batches of 100
func (q *QuestionPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.Question) error {
	if len(questions) == 0 {
		return nil
	}

	db := q.getDB(tx)
	if err := db.WithContext(ctx).CreateInBatches(questions, 100).Error; err != nil {
		if repositories.IsDuplicateError(err) {
			return fmt.Errorf("failed to create questions: %w", repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create questions: %w", err)
	}

	keys := make([]string, len(questions))
	for i, question := range questions {
		keys[i] = fmt.Sprintf("id:%s", question.ID)
	}
	q.hooks.add(func() {
		cache.SafeDelete(ctx, q.cacheManager.Question, keys...)
	})
	return nil
}

// GetByIDs serves what it can from cache and loads the rest in one query
func (q *QuestionPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) (map[string]*models.Question, error) {
	found := make(map[string]*models.Question, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	var missing []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		var cached models.Question
		if err := q.cacheManager.Question.Get(ctx, fmt.Sprintf("id:%s", id), &cached); err == nil {
			found[id] = &cached
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return found, nil
	}

	var questions []*models.Question
	if err := q.getDB(tx).WithContext(ctx).Where("id IN ?", missing).Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}

	for _, question := range questions {
		found[question.ID] = question
		if err := q.cacheManager.Question.Set(ctx, fmt.Sprintf("id:%s", question.ID), question, cache.QuestionCacheConfig.TTL); err != nil {
			slog.WarnContext(ctx, "Cache set error", "error", err, "question_id", question.ID)
		}
	}
	return found, nil
}

func (q *QuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}
