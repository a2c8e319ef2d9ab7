package models

import (
	"time"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptExpired    AttemptStatus = "expired"
)

// IsTerminal reports whether no further transition may leave the status.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptSubmitted || s == AttemptExpired
}

type Attempt struct {
	ID            string        `json:"attempt_id" gorm:"primaryKey;size:36"`
	TestID        string        `json:"test_id" gorm:"not null;size:36;index;uniqueIndex:idx_attempts_number,priority:2"`
	StudentID     string        `json:"student_id" gorm:"not null;size:255;index;uniqueIndex:idx_attempts_number,priority:1"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null;uniqueIndex:idx_attempts_number,priority:3"`
	Status        AttemptStatus `json:"status" gorm:"not null;size:20;default:in_progress;index"`

	// Timing
	StartedAt        time.Time  `json:"started_at" gorm:"not null"`
	SubmittedAt      *time.Time `json:"submitted_at"`
	TimeLimitSeconds *int       `json:"time_limit_seconds"` // nil for untimed tests
	TimeRemaining    *int       `json:"time_remaining"`     // seconds, frozen once terminal
	DeadlineAt       *time.Time `json:"deadline_at" gorm:"index"`

	// Progress
	CurrentQuestion int         `json:"current_question" gorm:"not null;default:0"`
	Answers         AnswerSheet `json:"answers"`

	// Grading, set only once a result exists
	Score    *float64   `json:"score"`
	Passed   *bool      `json:"passed"`
	GradedAt *time.Time `json:"graded_at"`

	// Failed grading runs; the recovery sweep retries the least failed first
	GradingFailures    int        `json:"-" gorm:"not null;default:0"`
	LastGradingErrorAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Attempt) TableName() string {
	return "attempts"
}

// IsGraded reports whether grading has completed for the attempt.
func (a *Attempt) IsGraded() bool {
	return a.Score != nil && a.Passed != nil
}

// TimeRemaining computes the time left on an attempt at now. The second
// return value is false for untimed attempts. Terminal attempts report their
// frozen remaining time.
func TimeRemaining(a *Attempt, now time.Time) (time.Duration, bool) {
	if a == nil || a.TimeLimitSeconds == nil {
		return 0, false
	}

	if a.Status.IsTerminal() {
		if a.TimeRemaining == nil {
			return 0, true
		}
		return time.Duration(*a.TimeRemaining) * time.Second, true
	}

	limit := time.Duration(*a.TimeLimitSeconds) * time.Second
	remaining := limit - now.Sub(a.StartedAt)

	// A client-reported value may already be lower than the wall clock one.
	if a.TimeRemaining != nil {
		if stored := time.Duration(*a.TimeRemaining) * time.Second; stored < remaining {
			remaining = stored
		}
	}

	if remaining < 0 {
		remaining = 0
	}
	if remaining > limit {
		remaining = limit
	}
	return remaining, true
}

// RemainingSeconds is TimeRemaining truncated to whole seconds, nil when untimed.
func RemainingSeconds(a *Attempt, now time.Time) *int {
	d, timed := TimeRemaining(a, now)
	if !timed {
		return nil
	}
	secs := int(d / time.Second)
	return &secs
}
