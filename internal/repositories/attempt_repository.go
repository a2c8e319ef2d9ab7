package repositories

import (
	"context"
	"time"

	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"gorm.io/gorm"
)

// AttemptRepository persists attempts and owns their state machine. Every
// write that depends on the status is a single conditional statement.
type AttemptRepository interface {
	// Create inserts a new in_progress attempt. It returns ErrDuplicate when
	// the student already has an in_progress attempt on the test or the
	// attempt number is taken.
	Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Attempt, error)
	GetByStudentAndTest(ctx context.Context, tx *gorm.DB, studentID, testID string) ([]*models.Attempt, error)

	// UpdateProgress writes progress only while the attempt is in_progress
	// and owned by studentID, otherwise ErrConditionFailed.
	UpdateProgress(ctx context.Context, tx *gorm.DB, id, studentID string, progress AttemptProgress) error

	// Transition performs the in_progress -> terminal compare-and-set. At most
	// one call per attempt succeeds; the rest get ErrConditionFailed.
	Transition(ctx context.Context, tx *gorm.DB, id string, transition AttemptTransition) error

	// SetGrade records the score of a terminal attempt once.
	SetGrade(ctx context.Context, tx *gorm.DB, id string, score float64, passed bool, gradedAt time.Time) error

	// RecordGradingFailure counts a failed grading run on an ungraded attempt.
	RecordGradingFailure(ctx context.Context, tx *gorm.DB, id string, at time.Time) error

	// Sweeper queries. GetPendingGrading orders by recorded failures first so
	// attempts that keep failing cannot hold the whole batch.
	GetPendingGrading(ctx context.Context, tx *gorm.DB, limit int) ([]*models.Attempt, error)
	GetOverdue(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*models.Attempt, error)
}

// ResultRepository stores graded results. Results are immutable.
type ResultRepository interface {
	// Create returns ErrDuplicate when the attempt already has a result.
	Create(ctx context.Context, tx *gorm.DB, result *models.TestResult) error
	GetByAttemptID(ctx context.Context, tx *gorm.DB, attemptID string) (*models.TestResult, error)
	GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters ResultFilters) ([]*models.TestResult, int64, error)
	GetByTest(ctx context.Context, tx *gorm.DB, testID string, filters ResultFilters) ([]*models.TestResult, int64, error)
	GetTestSummary(ctx context.Context, tx *gorm.DB, testID string) (*ResultSummary, error)
}
