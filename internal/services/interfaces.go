package services

import (
	"context"
	"time"

	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories"
	"github.com/SAP-F-2025/quiz-grading-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type StartAttemptRequest = validator.StartAttemptRequest
type SaveAnswerRequest = validator.SaveAnswerRequest
type SaveAllAnswersRequest = validator.SaveAllAnswersRequest
type UpdateAttemptRequest = validator.UpdateAttemptRequest
type SubmitAttemptRequest = validator.SubmitAttemptRequest

// ===== AVAILABILITY DTOs =====

type AvailabilityReason string

const (
	ReasonAvailable          AvailabilityReason = "available"
	ReasonTestNotFound       AvailabilityReason = "test_not_found"
	ReasonNotPublished       AvailabilityReason = "not_published"
	ReasonNotYetOpen         AvailabilityReason = "not_yet_open"
	ReasonClosed             AvailabilityReason = "closed"
	ReasonAttemptInProgress  AvailabilityReason = "attempt_in_progress"
	ReasonAttemptsExhausted  AvailabilityReason = "attempts_exhausted"
	ReasonAccessCodeRequired AvailabilityReason = "access_code_required"
	ReasonInvalidAccessCode  AvailabilityReason = "invalid_access_code"
)

// Availability is the start gate for one student on one test, plus what
// listing pages show about past attempts.
type Availability struct {
	TestID             string             `json:"test_id"`
	Title              string             `json:"title,omitempty"`
	CanStart           bool               `json:"can_start"`
	Reason             AvailabilityReason `json:"reason"`
	RequiresAccessCode bool               `json:"requires_access_code"`
	AvailableFrom      *time.Time         `json:"available_from,omitempty"`
	AvailableUntil     *time.Time         `json:"available_until,omitempty"`
	TimeLimitMinutes   *int               `json:"time_limit_minutes,omitempty"`
	PassingScore       float64            `json:"passing_score"`
	AttemptsAllowed    int                `json:"attempts_allowed"`
	AttemptsUsed       int                `json:"attempts_used"`
	AttemptsRemaining  int                `json:"attempts_remaining"`
	ActiveAttemptID    *string            `json:"active_attempt_id,omitempty"`
	LastScore          *float64           `json:"last_score,omitempty"`
	BestScore          *float64           `json:"best_score,omitempty"`
}

// ===== ATTEMPT DTOs =====

type AttemptResponse struct {
	*models.Attempt
	TotalQuestions       int  `json:"total_questions"`
	AnsweredQuestions    int  `json:"answered_questions"`
	RemainingSeconds     *int `json:"remaining_seconds"`
	RequiresTimeTracking bool `json:"requires_time_tracking"`
}

type GradingStatus string

const (
	GradingPending GradingStatus = "pending"
	GradingGraded  GradingStatus = "graded"
)

// SubmissionResponse is returned by submit and expire. The submission is
// committed in both grading states.
type SubmissionResponse struct {
	Attempt       *models.Attempt    `json:"attempt"`
	GradingStatus GradingStatus      `json:"grading_status"`
	Result        *models.TestResult `json:"result,omitempty"`
	Message       string             `json:"message,omitempty"`
}

type TimeRemainingResponse struct {
	AttemptID        string               `json:"attempt_id"`
	Status           models.AttemptStatus `json:"status"`
	Timed            bool                 `json:"timed"`
	RemainingSeconds *int                 `json:"remaining_seconds"`
	DeadlineAt       *time.Time           `json:"deadline_at,omitempty"`
	TimeUp           bool                 `json:"time_up"`
}

// ===== GRADING DTOs =====

type GradePendingReport struct {
	Scanned          int      `json:"scanned"`
	Graded           int      `json:"graded"`
	Failed           int      `json:"failed"`
	FailedAttemptIDs []string `json:"failed_attempt_ids,omitempty"`
}

// ===== RESULT DTOs =====

type ResultResponse struct {
	AttemptID     string               `json:"attempt_id"`
	AttemptStatus models.AttemptStatus `json:"attempt_status"`
	GradingStatus GradingStatus        `json:"grading_status"`
	Result        *models.TestResult   `json:"result,omitempty"`
}

type ResultListResponse struct {
	Results []*models.TestResult `json:"results"`
	Total   int64                `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

type TestResultsResponse struct {
	ResultListResponse
	Summary *repositories.ResultSummary `json:"summary"`
}

type ExportFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ServiceHandle records whether an optional collaborator is usable. It is
// decided once when the services are composed.
type ServiceHandle struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// ===== SERVICE INTERFACES =====

type AvailabilityService interface {
	// Check never fails for missing or unpublished tests; only storage errors
	// are returned.
	Check(ctx context.Context, testID, studentID string, accessCode *string) (*Availability, error)
	ListForStudent(ctx context.Context, studentID string) ([]*Availability, error)
}

type AttemptService interface {
	Start(ctx context.Context, req *StartAttemptRequest, studentID string) (*AttemptResponse, error)
	Get(ctx context.Context, attemptID, studentID string) (*AttemptResponse, error)
	SaveAnswer(ctx context.Context, attemptID, studentID, slotKey string, req *SaveAnswerRequest) (*AttemptResponse, error)
	SaveAllAnswers(ctx context.Context, attemptID, studentID string, req *SaveAllAnswersRequest) (*AttemptResponse, error)
	Update(ctx context.Context, attemptID, studentID string, req *UpdateAttemptRequest) (*AttemptResponse, error)
	Submit(ctx context.Context, attemptID, studentID string, req *SubmitAttemptRequest) (*SubmissionResponse, error)

	// Expire is the system-triggered terminal transition
	Expire(ctx context.Context, attemptID string) (*SubmissionResponse, error)
	ExpireForStudent(ctx context.Context, attemptID, studentID string) (*SubmissionResponse, error)
	ExpireOverdue(ctx context.Context, now time.Time, limit int) (int, error)

	TimeRemaining(ctx context.Context, attemptID, studentID string) (*TimeRemainingResponse, error)
}

type GradingService interface {
	// GradeAttempt is idempotent: an attempt that already has a result gets
	// the stored result back.
	GradeAttempt(ctx context.Context, attemptID string) (*models.TestResult, error)
	GradePending(ctx context.Context, limit int) (*GradePendingReport, error)
}

type ResultService interface {
	GetResult(ctx context.Context, attemptID, studentID string) (*ResultResponse, error)
	ListForStudent(ctx context.Context, studentID string, filters repositories.ResultFilters) (*ResultListResponse, error)
	ListForTest(ctx context.Context, testID, userID string, role models.UserRole, filters repositories.ResultFilters) (*TestResultsResponse, error)
}

type ExportService interface {
	ExportTestResults(ctx context.Context, testID, userID string, role models.UserRole) (*ExportFile, error)
}

type ServiceManager interface {
	Initialize(ctx context.Context) error

	Availability() AvailabilityService
	Attempt() AttemptService
	Grading() GradingService
	Result() ResultService
	Export() ExportService

	Handles() []ServiceHandle

	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
