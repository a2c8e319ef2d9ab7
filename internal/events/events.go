package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventSource  = "quiz-grading-service"
	EventVersion = "1.0"
)

type EventType string

const (
	AttemptStarted   EventType = "attempt.started"
	AttemptSubmitted EventType = "attempt.submitted"
	AttemptExpired   EventType = "attempt.expired"
	ResultGraded     EventType = "result.graded"
	GradingFailed    EventType = "grading.failed"
)

// Event is the envelope published for every domain event.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent stamps a payload with a fresh id and the current time.
func NewEvent(eventType EventType, data interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    EventSource,
		Version:   EventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// ===== PAYLOADS =====

type AttemptEvent struct {
	AttemptID     string     `json:"attempt_id"`
	TestID        string     `json:"test_id"`
	StudentID     string     `json:"student_id"`
	AttemptNumber int        `json:"attempt_number"`
	Status        string     `json:"status"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
}

type ResultEvent struct {
	ResultID        string  `json:"result_id"`
	AttemptID       string  `json:"attempt_id"`
	TestID          string  `json:"test_id"`
	StudentID       string  `json:"student_id"`
	PercentageScore float64 `json:"percentage_score"`
	Passed          bool    `json:"passed"`
	Skipped         int     `json:"skipped_questions"`
}

type GradingFailedEvent struct {
	AttemptID string `json:"attempt_id"`
	Reason    string `json:"reason"`
}

// EventPublisher publishes domain events. Publishing is best effort: callers
// log failures and carry on.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// NopPublisher drops every event. It stands in when no bus is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Event) error { return nil }
func (NopPublisher) Close() error                          { return nil }
