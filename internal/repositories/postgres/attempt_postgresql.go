package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories"
	"gorm.io/gorm"
)

// AttemptPostgreSQL stores attempts. Attempts are never cached: every
// status-dependent write is a conditional UPDATE against the row itself.
type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db}
}

var terminalStatuses = []models.AttemptStatus{models.AttemptSubmitted, models.AttemptExpired}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Create(attempt).Error; err != nil {
		if repositories.IsDuplicateError(err) {
			return fmt.Errorf("failed to create attempt: %w", repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Attempt, error) {
	var attempt models.Attempt
	if err := a.getDB(tx).WithContext(ctx).Where("id = ?", id).First(&attempt).Error; err != nil {
		return nil, notFoundOr(err, "get attempt")
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetByStudentAndTest(ctx context.Context, tx *gorm.DB, studentID, testID string) ([]*models.Attempt, error) {
	var attempts []*models.Attempt
	if err := a.getDB(tx).WithContext(ctx).
		Where("student_id = ? AND test_id = ?", studentID, testID).
		Order("attempt_number ASC").
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to get attempts: %w", err)
	}
	return attempts, nil
}

// ===== GUARDED WRITES =====

func (a *AttemptPostgreSQL) UpdateProgress(ctx context.Context, tx *gorm.DB, id, studentID string, progress repositories.AttemptProgress) error {
	updates := map[string]interface{}{
		"updated_at": time.Now().UTC(),
	}
	if progress.CurrentQuestion != nil {
		updates["current_question"] = *progress.CurrentQuestion
	}
	if progress.Answers != nil {
		updates["answers"] = *progress.Answers
	}
	if progress.TimeRemaining != nil {
		updates["time_remaining"] = *progress.TimeRemaining
	}

	result := a.getDB(tx).WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND student_id = ? AND status = ?", id, studentID, models.AttemptInProgress).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update attempt progress: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrConditionFailed
	}
	return nil
}

func (a *AttemptPostgreSQL) Transition(ctx context.Context, tx *gorm.DB, id string, transition repositories.AttemptTransition) error {
	if !transition.To.IsTerminal() {
		return fmt.Errorf("invalid transition target %q", transition.To)
	}

	updates := map[string]interface{}{
		"status":       transition.To,
		"submitted_at": transition.At.UTC(),
		"updated_at":   time.Now().UTC(),
	}
	if transition.Answers != nil {
		updates["answers"] = *transition.Answers
	}
	if transition.TimeRemaining != nil {
		updates["time_remaining"] = *transition.TimeRemaining
	}

	result := a.getDB(tx).WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND status = ?", id, models.AttemptInProgress).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to transition attempt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrConditionFailed
	}
	return nil
}

func (a *AttemptPostgreSQL) SetGrade(ctx context.Context, tx *gorm.DB, id string, score float64, passed bool, gradedAt time.Time) error {
	result := a.getDB(tx).WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND status IN ? AND score IS NULL", id, terminalStatuses).
		Updates(map[string]interface{}{
			"score":      score,
			"passed":     passed,
			"graded_at":  gradedAt.UTC(),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to set attempt grade: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrConditionFailed
	}
	return nil
}

func (a *AttemptPostgreSQL) RecordGradingFailure(ctx context.Context, tx *gorm.DB, id string, at time.Time) error {
	result := a.getDB(tx).WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND score IS NULL", id).
		Updates(map[string]interface{}{
			"grading_failures":      gorm.Expr("grading_failures + 1"),
			"last_grading_error_at": at.UTC(),
			"updated_at":            time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record grading failure: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrConditionFailed
	}
	return nil
}

// ===== SWEEPER QUERIES =====

// GetPendingGrading returns terminal attempts that have no score yet, least
// failed first, then oldest first
func (a *AttemptPostgreSQL) GetPendingGrading(ctx context.Context, tx *gorm.DB, limit int) ([]*models.Attempt, error) {
	query := a.getDB(tx).WithContext(ctx).
		Where("status IN ? AND score IS NULL", terminalStatuses).
		Order("grading_failures ASC").Order("submitted_at ASC").Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var attempts []*models.Attempt
	if err := query.Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to get attempts pending grading: %w", err)
	}
	return attempts, nil
}

// GetOverdue returns in_progress attempts whose deadline passed before cutoff
func (a *AttemptPostgreSQL) GetOverdue(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*models.Attempt, error) {
	query := a.getDB(tx).WithContext(ctx).
		Where("status = ? AND deadline_at IS NOT NULL AND deadline_at < ?", models.AttemptInProgress, cutoff.UTC()).
		Order("deadline_at ASC").Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var attempts []*models.Attempt
	if err := query.Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to get overdue attempts: %w", err)
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}
