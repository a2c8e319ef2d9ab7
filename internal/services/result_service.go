package services

import (
	"context"
	"log/slog"

	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories"
)

const (
	defaultResultPageSize = 20
	maxResultPageSize     = 100
)

type resultService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewResultService(repo repositories.Repository, logger *slog.Logger) ResultService {
	return &resultService{
		repo:   repo,
		logger: logger,
	}
}

// GetResult returns the result of a student's own attempt, or a pending
// state when grading has not completed yet.
func (s *resultService) GetResult(ctx context.Context, attemptID, studentID string) (*ResultResponse, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		return nil, lookupError("get attempt", err, ErrAttemptNotFound)
	}
	if attempt.StudentID != studentID {
		return nil, &PermissionError{
			UserID:     studentID,
			ResourceID: attemptID,
			Resource:   "result",
			Action:     "read",
			Reason:     "attempt belongs to another student",
		}
	}
	if !attempt.Status.IsTerminal() {
		return nil, &StateTransitionError{
			Operation: "get result",
			Status:    attempt.Status,
			Reason:    "attempt has not been submitted",
			Err:       ErrAttemptNotSubmitted,
		}
	}

	resp := &ResultResponse{
		AttemptID:     attempt.ID,
		AttemptStatus: attempt.Status,
		GradingStatus: GradingPending,
	}

	result, err := s.repo.Result().GetByAttemptID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return resp, nil
		}
		return nil, storageError("get result", err)
	}

	resp.GradingStatus = GradingGraded
	resp.Result = result
	return resp, nil
}

func (s *resultService) ListForStudent(ctx context.Context, studentID string, filters repositories.ResultFilters) (*ResultListResponse, error) {
	filters = normalizeResultFilters(filters)

	results, total, err := s.repo.Result().GetByStudent(ctx, nil, studentID, filters)
	if err != nil {
		return nil, storageError("list results", err)
	}
	return newResultList(results, total, filters), nil
}

// ListForTest lists a test's results for its instructor. Admins may read any
// test.
func (s *resultService) ListForTest(ctx context.Context, testID, userID string, role models.UserRole, filters repositories.ResultFilters) (*TestResultsResponse, error) {
	if _, err := authorizeTestRead(ctx, s.repo, testID, userID, role); err != nil {
		return nil, err
	}

	filters = normalizeResultFilters(filters)
	results, total, err := s.repo.Result().GetByTest(ctx, nil, testID, filters)
	if err != nil {
		return nil, storageError("list results", err)
	}

	summary, err := s.repo.Result().GetTestSummary(ctx, nil, testID)
	if err != nil {
		return nil, storageError("get result summary", err)
	}

	return &TestResultsResponse{
		ResultListResponse: *newResultList(results, total, filters),
		Summary:            summary,
	}, nil
}

// authorizeTestRead loads a test and checks the caller may read its results.
func authorizeTestRead(ctx context.Context, repo repositories.Repository, testID, userID string, role models.UserRole) (*models.Test, error) {
	test, err := repo.Test().GetByID(ctx, nil, testID)
	if err != nil {
		return nil, lookupError("get test", err, ErrTestNotFound)
	}

	if role == models.RoleAdmin {
		return test, nil
	}
	if !role.CanManageTests() || test.CreatedBy != userID {
		return nil, &PermissionError{
			UserID:     userID,
			ResourceID: testID,
			Resource:   "test results",
			Action:     "read",
			Reason:     "only the test owner can read its results",
		}
	}
	return test, nil
}

func normalizeResultFilters(filters repositories.ResultFilters) repositories.ResultFilters {
	if filters.Limit <= 0 {
		filters.Limit = defaultResultPageSize
	}
	if filters.Limit > maxResultPageSize {
		filters.Limit = maxResultPageSize
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return filters
}

func newResultList(results []*models.TestResult, total int64, filters repositories.ResultFilters) *ResultListResponse {
	if results == nil {
		results = []*models.TestResult{}
	}
	return &ResultListResponse{
		Results: results,
		Total:   total,
		Limit:   filters.Limit,
		Offset:  filters.Offset,
	}
}
