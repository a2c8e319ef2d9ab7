package services

import (
	"errors"
	"fmt"

	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAttemptNotFound = fmt.Errorf("attempt %w", ErrNotFound)
	ErrTestNotFound    = fmt.Errorf("test %w", ErrNotFound)
	ErrResultNotFound  = fmt.Errorf("result %w", ErrNotFound)

	ErrUnauthorized = errors.New("unauthorized")

	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrAttemptInProgress      = errors.New("attempt already in progress")
	ErrAttemptsExhausted      = errors.New("no attempts remaining")
	ErrTestNotAvailable       = errors.New("test is not available")
	ErrInvalidAccessCode      = errors.New("invalid access code")
	ErrAttemptNotActive       = errors.New("attempt is not in progress")
	ErrAttemptNotSubmitted    = errors.New("attempt has not been submitted")
	ErrAttemptNotTimed        = errors.New("attempt has no time limit")

	ErrGradingFailed      = errors.New("grading failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// PermissionError is returned when a caller touches a resource it does not own
type PermissionError struct {
	UserID     string
	ResourceID string
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %s: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func (e *PermissionError) Is(target error) bool {
	return target == ErrUnauthorized
}

// StateTransitionError is returned when an operation is not allowed in the
// current state. Err is the specific cause.
type StateTransitionError struct {
	Operation string
	Status    models.AttemptStatus
	Reason    string
	Err       error
}

func (e *StateTransitionError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("cannot %s attempt in status %s: %s", e.Operation, e.Status, e.Reason)
	}
	return fmt.Sprintf("cannot %s: %s", e.Operation, e.Reason)
}

func (e *StateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

func (e *StateTransitionError) Unwrap() error {
	return e.Err
}

// GradingError means a committed submission has no result yet. It is
// retryable through the pending grading path.
type GradingError struct {
	AttemptID string
	Err       error
}

func (e *GradingError) Error() string {
	return fmt.Sprintf("grading attempt %s failed: %v", e.AttemptID, e.Err)
}

func (e *GradingError) Is(target error) bool {
	return target == ErrGradingFailed
}

func (e *GradingError) Unwrap() error {
	return e.Err
}

// StorageError wraps a failure of the record store. Callers may retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// lookupError maps a repository read error to notFound or a storage error.
func lookupError(op string, err error, notFound error) error {
	if repositories.IsNotFoundError(err) {
		return notFound
	}
	return storageError(op, err)
}

// IsRetryable reports whether retrying the same call may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrGradingFailed)
}
