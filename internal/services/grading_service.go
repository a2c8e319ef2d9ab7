package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/quiz-grading-service/internal/events"
	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories"
)

type gradingService struct {
	repo      repositories.Repository
	engine    *GradingEngine
	publisher events.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewGradingService(repo repositories.Repository, engine *GradingEngine, publisher events.EventPublisher, logger *slog.Logger) GradingService {
	if engine == nil {
		engine = NewGradingEngine()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &gradingService{
		repo:      repo,
		engine:    engine,
		publisher: publisher,
		logger:    logger,
		now:       utcNow,
	}
}

// ===== GRADING OPERATIONS =====

func (s *gradingService) GradeAttempt(ctx context.Context, attemptID string) (*models.TestResult, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, s.failed(ctx, attemptID, fmt.Errorf("failed to get attempt: %w", err))
	}

	if !attempt.Status.IsTerminal() {
		return nil, &StateTransitionError{
			Operation: "grade",
			Status:    attempt.Status,
			Reason:    "attempt has not been submitted",
			Err:       ErrAttemptNotSubmitted,
		}
	}

	existing, err := s.repo.Result().GetByAttemptID(ctx, nil, attemptID)
	if err == nil {
		s.logger.Debug("Attempt already graded", "attempt_id", attemptID, "result_id", existing.ID)
		return existing, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, s.failed(ctx, attemptID, fmt.Errorf("failed to check existing result: %w", err))
	}

	test, err := s.repo.Test().GetByID(ctx, nil, attempt.TestID)
	if err != nil {
		return nil, s.failed(ctx, attemptID, fmt.Errorf("failed to get test %s: %w", attempt.TestID, err))
	}

	questions, err := s.repo.Question().GetByIDs(ctx, nil, test.QuestionIDs)
	if err != nil {
		return nil, s.failed(ctx, attemptID, fmt.Errorf("failed to get questions: %w", err))
	}

	result, warnings := s.engine.Grade(attempt, test, questions, s.now())
	result.ID = uuid.NewString()
	for _, w := range warnings {
		s.logger.Warn("Grading warning",
			"attempt_id", attemptID,
			"kind", w.Kind,
			"question_id", w.QuestionID,
			"question_number", w.QuestionNumber,
			"message", w.Message)
	}

	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.Result().Create(ctx, nil, result); err != nil {
			return err
		}
		return tx.Attempt().SetGrade(ctx, nil, attemptID, result.PercentageScore, result.Passed, result.GradedAt)
	})
	if err != nil {
		// a concurrent grader won the unique attempt_id race
		if repositories.IsDuplicateError(err) || repositories.IsConditionFailed(err) {
			stored, getErr := s.repo.Result().GetByAttemptID(ctx, nil, attemptID)
			if getErr == nil {
				return stored, nil
			}
		}
		return nil, s.failed(ctx, attemptID, fmt.Errorf("failed to store result: %w", err))
	}

	s.logger.Info("Attempt graded",
		"attempt_id", attemptID,
		"result_id", result.ID,
		"percentage_score", result.PercentageScore,
		"passed", result.Passed,
		"skipped_questions", len(result.SkippedQuestionIDs))

	s.publish(ctx, events.NewEvent(events.ResultGraded, events.ResultEvent{
		ResultID:        result.ID,
		AttemptID:       result.AttemptID,
		TestID:          result.TestID,
		StudentID:       result.StudentID,
		PercentageScore: result.PercentageScore,
		Passed:          result.Passed,
		Skipped:         len(result.SkippedQuestionIDs),
	}))

	return result, nil
}

// GradePending re-runs grading for terminal attempts without a result.
func (s *gradingService) GradePending(ctx context.Context, limit int) (*GradePendingReport, error) {
	attempts, err := s.repo.Attempt().GetPendingGrading(ctx, nil, limit)
	if err != nil {
		return nil, storageError("get attempts pending grading", err)
	}

	report := &GradePendingReport{Scanned: len(attempts)}
	for _, attempt := range attempts {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if _, err := s.GradeAttempt(ctx, attempt.ID); err != nil {
			report.Failed++
			report.FailedAttemptIDs = append(report.FailedAttemptIDs, attempt.ID)
			continue
		}
		report.Graded++
	}

	if report.Scanned > 0 {
		s.logger.Info("Pending grading run finished",
			"scanned", report.Scanned,
			"graded", report.Graded,
			"failed", report.Failed)
	}
	return report, nil
}

// ===== HELPER METHODS =====

func (s *gradingService) failed(ctx context.Context, attemptID string, err error) error {
	s.logger.Error("Grading failed", "attempt_id", attemptID, "error", err)

	// moves the attempt behind never-failed ones in the next sweep
	if recErr := s.repo.Attempt().RecordGradingFailure(ctx, nil, attemptID, s.now()); recErr != nil && !repositories.IsConditionFailed(recErr) {
		s.logger.Warn("Failed to record grading failure", "attempt_id", attemptID, "error", recErr)
	}

	s.publish(ctx, events.NewEvent(events.GradingFailed, events.GradingFailedEvent{
		AttemptID: attemptID,
		Reason:    err.Error(),
	}))
	return &GradingError{AttemptID: attemptID, Err: err}
}

func (s *gradingService) publish(ctx context.Context, event *events.Event) {
	publishEvent(ctx, s.publisher, s.logger, event)
}
