package repositories

import (
	"context"

	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"gorm.io/gorm"
)

// TestRepository reads test definitions.
type TestRepository interface {
	Create(ctx context.Context, tx *gorm.DB, test *models.Test) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Test, error)
	List(ctx context.Context, tx *gorm.DB, filters TestFilters) ([]*models.Test, error)
}

// QuestionRepository reads question definitions.
type QuestionRepository interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.Question) error

	// GetByIDs returns the questions that exist, keyed by id. Missing ids are
	// simply absent from the map.
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) (map[string]*models.Question, error)
}
