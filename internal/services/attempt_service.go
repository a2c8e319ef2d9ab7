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
	"github.com/SAP-F-2025/quiz-grading-service/internal/validator"
)

type attemptService struct {
	repo        repositories.Repository
	grading     GradingService
	publisher   events.EventPublisher
	logger      *slog.Logger
	validator   *validator.Validator
	expiryGrace time.Duration
	now         func() time.Time
}

func NewAttemptService(repo repositories.Repository, grading GradingService, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator, expiryGrace time.Duration) AttemptService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &attemptService{
		repo:        repo,
		grading:     grading,
		publisher:   publisher,
		logger:      logger,
		validator:   validator,
		expiryGrace: expiryGrace,
		now:         utcNow,
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) Start(ctx context.Context, req *StartAttemptRequest, studentID string) (*AttemptResponse, error) {
	s.logger.Info("Starting attempt", "test_id", req.TestID, "student_id", studentID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	test, err := s.repo.Test().GetByID(ctx, nil, req.TestID)
	if err != nil {
		return nil, lookupError("get test", err, ErrTestNotFound)
	}

	attempts, err := s.repo.Attempt().GetByStudentAndTest(ctx, nil, studentID, req.TestID)
	if err != nil {
		return nil, storageError("get attempts", err)
	}

	now := s.now()
	availability := EvaluateAvailability(test, attempts, req.AccessCode, now)
	if !availability.CanStart {
		s.logger.Info("Attempt start rejected",
			"test_id", req.TestID,
			"student_id", studentID,
			"reason", availability.Reason)
		return nil, startError(availability)
	}

	// definitions are authored elsewhere and checked before use
	if err := s.validator.Validate(test); err != nil {
		s.logger.Error("Invalid test definition", "test_id", test.ID, "error", err)
		return nil, &StateTransitionError{
			Operation: "start",
			Reason:    "test definition is invalid",
			Err:       ErrTestNotAvailable,
		}
	}

	attempt := &models.Attempt{
		ID:               uuid.NewString(),
		TestID:           test.ID,
		StudentID:        studentID,
		AttemptNumber:    nextAttemptNumber(attempts),
		Status:           models.AttemptInProgress,
		StartedAt:        now,
		TimeLimitSeconds: test.TimeLimitSeconds(),
		CurrentQuestion:  0,
		Answers:          models.AnswerSheet{},
	}
	if limit := attempt.TimeLimitSeconds; limit != nil {
		remaining := *limit
		deadline := now.Add(time.Duration(*limit) * time.Second)
		attempt.TimeRemaining = &remaining
		attempt.DeadlineAt = &deadline
	}

	// The unique indexes decide concurrent starts: one in_progress attempt per
	// student and test, and one attempt per attempt number.
	if err := s.repo.Attempt().Create(ctx, nil, attempt); err != nil {
		if repositories.IsDuplicateError(err) {
			return nil, &StateTransitionError{
				Operation: "start",
				Reason:    string(ReasonAttemptInProgress),
				Err:       ErrAttemptInProgress,
			}
		}
		return nil, storageError("create attempt", err)
	}

	s.logger.Info("Attempt started",
		"attempt_id", attempt.ID,
		"test_id", attempt.TestID,
		"student_id", studentID,
		"attempt_number", attempt.AttemptNumber)

	s.publish(ctx, events.AttemptStarted, attempt)

	return s.buildResponse(attempt, test), nil
}

func (s *attemptService) Get(ctx context.Context, attemptID, studentID string) (*AttemptResponse, error) {
	attempt, err := s.getOwned(ctx, attemptID, studentID, "read")
	if err != nil {
		return nil, err
	}
	return s.buildResponse(attempt, s.testFor(ctx, attempt)), nil
}

// ===== ANSWER OPERATIONS =====

func (s *attemptService) SaveAnswer(ctx context.Context, attemptID, studentID, slotKey string, req *SaveAnswerRequest) (*AttemptResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	index, err := models.ParseSlotKey(slotKey)
	if err != nil {
		return nil, validator.ValidationErrors{{Field: "slot", Message: "must look like question_{n}", Value: slotKey, Rule: "slot_key"}}
	}

	attempt, test, err := s.getActive(ctx, attemptID, studentID, "save answer")
	if err != nil {
		return nil, err
	}
	if err := checkPositions(test, map[int]*models.Answer{index: req.Answer}); err != nil {
		return nil, err
	}

	answers := attempt.Answers.With(index, req.Answer)
	if err := s.writeProgress(ctx, attempt, repositories.AttemptProgress{Answers: &answers}, "save answer"); err != nil {
		return nil, err
	}

	attempt.Answers = answers
	return s.buildResponse(attempt, test), nil
}

func (s *attemptService) SaveAllAnswers(ctx context.Context, attemptID, studentID string, req *SaveAllAnswersRequest) (*AttemptResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	positions, err := req.Answers.Positions()
	if err != nil {
		return nil, err
	}

	attempt, test, err := s.getActive(ctx, attemptID, studentID, "save answers")
	if err != nil {
		return nil, err
	}
	if err := checkPositions(test, positions); err != nil {
		return nil, err
	}
	if err := checkCurrentQuestion(test, req.CurrentQuestion); err != nil {
		return nil, err
	}

	var answers models.AnswerSheet
	if req.Replace {
		answers = models.SheetFromMap(positions)
	} else {
		answers = attempt.Answers.Merge(positions)
	}

	progress := repositories.AttemptProgress{Answers: &answers, CurrentQuestion: req.CurrentQuestion}
	if err := s.writeProgress(ctx, attempt, progress, "save answers"); err != nil {
		return nil, err
	}

	attempt.Answers = answers
	if req.CurrentQuestion != nil {
		attempt.CurrentQuestion = *req.CurrentQuestion
	}
	return s.buildResponse(attempt, test), nil
}

// Update applies a partial update. Answers merge; time_remaining may only
// decrease and is ignored on untimed attempts.
func (s *attemptService) Update(ctx context.Context, attemptID, studentID string, req *UpdateAttemptRequest) (*AttemptResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	positions, err := req.Answers.Positions()
	if err != nil {
		return nil, err
	}

	attempt, test, err := s.getActive(ctx, attemptID, studentID, "update")
	if err != nil {
		return nil, err
	}
	if err := checkPositions(test, positions); err != nil {
		return nil, err
	}
	if err := checkCurrentQuestion(test, req.CurrentQuestion); err != nil {
		return nil, err
	}

	progress := repositories.AttemptProgress{CurrentQuestion: req.CurrentQuestion}
	if len(positions) > 0 {
		answers := attempt.Answers.Merge(positions)
		progress.Answers = &answers
	}
	if req.TimeRemaining != nil && attempt.TimeLimitSeconds != nil {
		remaining := *req.TimeRemaining
		if current := models.RemainingSeconds(attempt, s.now()); current != nil && *current < remaining {
			remaining = *current
		}
		progress.TimeRemaining = &remaining
	}

	if err := s.writeProgress(ctx, attempt, progress, "update"); err != nil {
		return nil, err
	}

	if progress.Answers != nil {
		attempt.Answers = *progress.Answers
	}
	if progress.CurrentQuestion != nil {
		attempt.CurrentQuestion = *progress.CurrentQuestion
	}
	if progress.TimeRemaining != nil {
		attempt.TimeRemaining = progress.TimeRemaining
	}
	return s.buildResponse(attempt, test), nil
}

// ===== TERMINAL TRANSITIONS =====

// Submit merges the final answers over the saved ones, or replaces them when
// req.Replace is set, and submits. Grading runs right after the transition
// commits; a grading failure leaves the attempt submitted and the response
// pending.
func (s *attemptService) Submit(ctx context.Context, attemptID, studentID string, req *SubmitAttemptRequest) (*SubmissionResponse, error) {
	s.logger.Info("Submitting attempt", "attempt_id", attemptID, "student_id", studentID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	positions, err := req.Answers.Positions()
	if err != nil {
		return nil, err
	}

	attempt, test, err := s.getActive(ctx, attemptID, studentID, "submit")
	if err != nil {
		return nil, err
	}
	if err := checkPositions(test, positions); err != nil {
		return nil, err
	}

	answers := attempt.Answers.Merge(positions)
	if req.Replace {
		answers = models.SheetFromMap(positions)
	}
	return s.finish(ctx, attempt, models.AttemptSubmitted, &answers)
}

func (s *attemptService) Expire(ctx context.Context, attemptID string) (*SubmissionResponse, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		return nil, lookupError("get attempt", err, ErrAttemptNotFound)
	}
	if attempt.Status.IsTerminal() {
		return nil, notActiveError("expire", attempt.Status)
	}
	return s.finish(ctx, attempt, models.AttemptExpired, nil)
}

// ExpireForStudent is called when the owner's timer reached zero.
func (s *attemptService) ExpireForStudent(ctx context.Context, attemptID, studentID string) (*SubmissionResponse, error) {
	attempt, err := s.getInProgress(ctx, attemptID, studentID, "expire")
	if err != nil {
		return nil, err
	}
	if attempt.TimeLimitSeconds == nil {
		return nil, &StateTransitionError{
			Operation: "expire",
			Status:    attempt.Status,
			Reason:    "attempt has no time limit",
			Err:       ErrAttemptNotTimed,
		}
	}
	return s.finish(ctx, attempt, models.AttemptExpired, nil)
}

// ExpireOverdue expires in_progress attempts whose deadline passed more than
// the grace period before now. Attempts that were submitted meanwhile are
// skipped.
func (s *attemptService) ExpireOverdue(ctx context.Context, now time.Time, limit int) (int, error) {
	overdue, err := s.repo.Attempt().GetOverdue(ctx, nil, now.Add(-s.expiryGrace), limit)
	if err != nil {
		return 0, storageError("get overdue attempts", err)
	}

	expired := 0
	for _, attempt := range overdue {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		if _, err := s.finish(ctx, attempt, models.AttemptExpired, nil); err != nil {
			if !IsRetryable(err) {
				s.logger.Debug("Attempt left before expiry", "attempt_id", attempt.ID, "error", err)
				continue
			}
			s.logger.Error("Failed to expire attempt", "attempt_id", attempt.ID, "error", err)
			continue
		}
		expired++
	}

	if expired > 0 {
		s.logger.Info("Expired overdue attempts", "count", expired)
	}
	return expired, nil
}

func (s *attemptService) TimeRemaining(ctx context.Context, attemptID, studentID string) (*TimeRemainingResponse, error) {
	attempt, err := s.getOwned(ctx, attemptID, studentID, "read")
	if err != nil {
		return nil, err
	}

	resp := &TimeRemainingResponse{
		AttemptID:  attempt.ID,
		Status:     attempt.Status,
		DeadlineAt: attempt.DeadlineAt,
	}
	if remaining := models.RemainingSeconds(attempt, s.now()); remaining != nil {
		resp.Timed = true
		resp.RemainingSeconds = remaining
		resp.TimeUp = *remaining == 0
	}
	return resp, nil
}

// finish performs the in_progress -> terminal compare-and-set, then grades.
// answers nil keeps the persisted answers.
func (s *attemptService) finish(ctx context.Context, attempt *models.Attempt, to models.AttemptStatus, answers *models.AnswerSheet) (*SubmissionResponse, error) {
	now := s.now()
	transition := repositories.AttemptTransition{
		To:            to,
		At:            now,
		Answers:       answers,
		TimeRemaining: models.RemainingSeconds(attempt, now),
	}
	if to == models.AttemptExpired && transition.TimeRemaining != nil {
		zero := 0
		transition.TimeRemaining = &zero
	}

	op := "submit"
	if to == models.AttemptExpired {
		op = "expire"
	}

	if err := s.repo.Attempt().Transition(ctx, nil, attempt.ID, transition); err != nil {
		if repositories.IsConditionFailed(err) {
			return nil, s.transitionLost(ctx, attempt.ID, op)
		}
		return nil, storageError(op+" attempt", err)
	}

	attempt.Status = to
	attempt.SubmittedAt = &now
	attempt.TimeRemaining = transition.TimeRemaining
	if answers != nil {
		attempt.Answers = *answers
	}

	s.logger.Info("Attempt finished", "attempt_id", attempt.ID, "status", to)
	if to == models.AttemptExpired {
		s.publish(ctx, events.AttemptExpired, attempt)
	} else {
		s.publish(ctx, events.AttemptSubmitted, attempt)
	}

	// The submission is committed; grading must not be cut short by the
	// caller going away.
	result, err := s.grading.GradeAttempt(context.WithoutCancel(ctx), attempt.ID)
	if err != nil {
		s.logger.Warn("Attempt submitted, grading pending", "attempt_id", attempt.ID, "error", err)
		return &SubmissionResponse{
			Attempt:       attempt,
			GradingStatus: GradingPending,
			Message:       "submitted, results pending",
		}, nil
	}

	attempt.Score = &result.PercentageScore
	attempt.Passed = &result.Passed
	attempt.GradedAt = &result.GradedAt
	return &SubmissionResponse{
		Attempt:       attempt,
		GradingStatus: GradingGraded,
		Result:        result,
	}, nil
}

// transitionLost explains why a guarded transition matched no rows.
func (s *attemptService) transitionLost(ctx context.Context, attemptID, op string) error {
	current, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		return lookupError("get attempt", err, ErrAttemptNotFound)
	}
	return notActiveError(op, current.Status)
}

// ===== HELPER METHODS =====

func (s *attemptService) getOwned(ctx context.Context, attemptID, studentID, action string) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		return nil, lookupError("get attempt", err, ErrAttemptNotFound)
	}
	if attempt.StudentID != studentID {
		return nil, &PermissionError{
			UserID:     studentID,
			ResourceID: attemptID,
			Resource:   "attempt",
			Action:     action,
			Reason:     "attempt belongs to another student",
		}
	}
	return attempt, nil
}

func (s *attemptService) getInProgress(ctx context.Context, attemptID, studentID, op string) (*models.Attempt, error) {
	attempt, err := s.getOwned(ctx, attemptID, studentID, op)
	if err != nil {
		return nil, err
	}
	if attempt.Status != models.AttemptInProgress {
		return nil, notActiveError(op, attempt.Status)
	}
	return attempt, nil
}

// getActive loads an in-progress attempt together with its test. Answer
// writes are bounded by the test's question count, so they fail without it.
func (s *attemptService) getActive(ctx context.Context, attemptID, studentID, op string) (*models.Attempt, *models.Test, error) {
	attempt, err := s.getInProgress(ctx, attemptID, studentID, op)
	if err != nil {
		return nil, nil, err
	}
	test, err := s.repo.Test().GetByID(ctx, nil, attempt.TestID)
	if err != nil {
		return nil, nil, lookupError("get test", err, ErrTestNotFound)
	}
	return attempt, test, nil
}

// testFor loads the attempt's test for response counts on reads. A missing
// test only leaves them out.
func (s *attemptService) testFor(ctx context.Context, attempt *models.Attempt) *models.Test {
	test, err := s.repo.Test().GetByID(ctx, nil, attempt.TestID)
	if err != nil {
		s.logger.Warn("Test unavailable for attempt", "attempt_id", attempt.ID, "test_id", attempt.TestID, "error", err)
		return nil
	}
	return test
}

func (s *attemptService) writeProgress(ctx context.Context, attempt *models.Attempt, progress repositories.AttemptProgress, op string) error {
	err := s.repo.Attempt().UpdateProgress(ctx, nil, attempt.ID, attempt.StudentID, progress)
	if err == nil {
		return nil
	}
	if repositories.IsConditionFailed(err) {
		return s.transitionLost(ctx, attempt.ID, op)
	}
	return storageError(op, err)
}

func (s *attemptService) buildResponse(attempt *models.Attempt, test *models.Test) *AttemptResponse {
	resp := &AttemptResponse{
		Attempt:              attempt,
		AnsweredQuestions:    attempt.Answers.Answered(),
		RemainingSeconds:     models.RemainingSeconds(attempt, s.now()),
		RequiresTimeTracking: attempt.TimeLimitSeconds != nil,
	}
	if test != nil {
		resp.TotalQuestions = len(test.QuestionIDs)
	}
	return resp
}

func (s *attemptService) publish(ctx context.Context, eventType events.EventType, attempt *models.Attempt) {
	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(eventType, events.AttemptEvent{
		AttemptID:     attempt.ID,
		TestID:        attempt.TestID,
		StudentID:     attempt.StudentID,
		AttemptNumber: attempt.AttemptNumber,
		Status:        string(attempt.Status),
		SubmittedAt:   attempt.SubmittedAt,
	}))
}

func publishEvent(ctx context.Context, publisher events.EventPublisher, logger *slog.Logger, event *events.Event) {
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish event", "event_type", event.Type, "error", err)
	}
}

func notActiveError(op string, status models.AttemptStatus) error {
	return &StateTransitionError{
		Operation: op,
		Status:    status,
		Reason:    fmt.Sprintf("attempt is already %s", status),
		Err:       ErrAttemptNotActive,
	}
}

func nextAttemptNumber(attempts []*models.Attempt) int {
	highest := 0
	for _, a := range attempts {
		if a.AttemptNumber > highest {
			highest = a.AttemptNumber
		}
	}
	return highest + 1
}

// checkPositions rejects answers for positions the test does not have.
func checkPositions(test *models.Test, positions map[int]*models.Answer) error {
	for index := range positions {
		if index >= len(test.QuestionIDs) {
			return validator.ValidationErrors{{
				Field:   "answers",
				Message: fmt.Sprintf("test has %d questions", len(test.QuestionIDs)),
				Value:   models.SlotKey(index),
				Rule:    "slot_range",
			}}
		}
	}
	return nil
}

func checkCurrentQuestion(test *models.Test, current *int) error {
	if current == nil || len(test.QuestionIDs) == 0 {
		return nil
	}
	if *current >= len(test.QuestionIDs) {
		return validator.ValidationErrors{{
			Field:   "current_question",
			Message: fmt.Sprintf("must be less than %d", len(test.QuestionIDs)),
			Value:   *current,
			Rule:    "max",
		}}
	}
	return nil
}
