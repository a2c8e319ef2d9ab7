package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories"
)

type availabilityService struct {
	repo   repositories.Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewAvailabilityService(repo repositories.Repository, logger *slog.Logger) AvailabilityService {
	return &availabilityService{
		repo:   repo,
		logger: logger,
		now:    utcNow,
	}
}

// EvaluateAvailability decides whether a student may start a new attempt.
// attempts are all of the student's attempts on the test, any status. A nil
// test means the test does not exist.
func EvaluateAvailability(test *models.Test, attempts []*models.Attempt, accessCode *string, now time.Time) Availability {
	if test == nil {
		return Availability{Reason: ReasonTestNotFound}
	}

	a := Availability{
		TestID:             test.ID,
		Title:              test.Title,
		RequiresAccessCode: test.RequiresAccessCode(),
		AvailableFrom:      test.AvailableFrom,
		AvailableUntil:     test.AvailableUntil,
		TimeLimitMinutes:   test.TimeLimitMinutes,
		PassingScore:       test.PassingScore,
		AttemptsAllowed:    test.AttemptsAllowed,
		AttemptsUsed:       len(attempts),
	}
	if remaining := test.AttemptsAllowed - len(attempts); remaining > 0 {
		a.AttemptsRemaining = remaining
	}

	var lastNumber int
	for _, attempt := range attempts {
		if attempt.Status == models.AttemptInProgress {
			id := attempt.ID
			a.ActiveAttemptID = &id
		}
		if attempt.Score == nil {
			continue
		}
		score := *attempt.Score
		if a.BestScore == nil || score > *a.BestScore {
			a.BestScore = &score
		}
		if attempt.AttemptNumber > lastNumber {
			lastNumber = attempt.AttemptNumber
			a.LastScore = &score
		}
	}

	switch {
	case test.Status != models.TestPublished:
		a.Reason = ReasonNotPublished
	case test.AvailableFrom != nil && now.Before(*test.AvailableFrom):
		a.Reason = ReasonNotYetOpen
	case test.AvailableUntil != nil && now.After(*test.AvailableUntil):
		a.Reason = ReasonClosed
	case a.ActiveAttemptID != nil:
		a.Reason = ReasonAttemptInProgress
	case len(attempts) >= test.AttemptsAllowed:
		a.Reason = ReasonAttemptsExhausted
	case a.RequiresAccessCode && accessCode == nil:
		a.Reason = ReasonAccessCodeRequired
	case a.RequiresAccessCode && *accessCode != *test.AccessCode:
		a.Reason = ReasonInvalidAccessCode
	default:
		a.CanStart = true
		a.Reason = ReasonAvailable
	}
	return a
}

// startError converts a failed gate into the error returned by start.
func startError(a Availability) error {
	reason := string(a.Reason)
	switch a.Reason {
	case ReasonTestNotFound:
		return ErrTestNotFound
	case ReasonAttemptInProgress:
		return &StateTransitionError{Operation: "start", Reason: reason, Err: ErrAttemptInProgress}
	case ReasonAttemptsExhausted:
		return &StateTransitionError{Operation: "start", Reason: reason, Err: ErrAttemptsExhausted}
	case ReasonAccessCodeRequired, ReasonInvalidAccessCode:
		return &StateTransitionError{Operation: "start", Reason: reason, Err: ErrInvalidAccessCode}
	default:
		return &StateTransitionError{Operation: "start", Reason: reason, Err: ErrTestNotAvailable}
	}
}

func (s *availabilityService) Check(ctx context.Context, testID, studentID string, accessCode *string) (*Availability, error) {
	test, err := s.repo.Test().GetByID(ctx, nil, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			a := EvaluateAvailability(nil, nil, accessCode, s.now())
			a.TestID = testID
			return &a, nil
		}
		return nil, storageError("get test", err)
	}

	attempts, err := s.repo.Attempt().GetByStudentAndTest(ctx, nil, studentID, testID)
	if err != nil {
		return nil, storageError("get attempts", err)
	}

	a := EvaluateAvailability(test, attempts, accessCode, s.now())
	return &a, nil
}

// ListForStudent evaluates every published test for the student. Access
// codes are not known here, so protected tests report access_code_required.
func (s *availabilityService) ListForStudent(ctx context.Context, studentID string) ([]*Availability, error) {
	published := models.TestPublished
	tests, err := s.repo.Test().List(ctx, nil, repositories.TestFilters{Status: &published})
	if err != nil {
		return nil, storageError("list tests", err)
	}

	now := s.now()
	out := make([]*Availability, 0, len(tests))
	for _, test := range tests {
		attempts, err := s.repo.Attempt().GetByStudentAndTest(ctx, nil, studentID, test.ID)
		if err != nil {
			return nil, storageError("get attempts", err)
		}
		a := EvaluateAvailability(test, attempts, nil, now)
		out = append(out, &a)
	}

	s.logger.Debug("Evaluated test availability", "student_id", studentID, "tests", len(out))
	return out, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
