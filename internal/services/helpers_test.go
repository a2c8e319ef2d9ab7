package services

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/SAP-F-2025/quiz-grading-service/internal/events"
	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"github.com/SAP-F-2025/quiz-grading-service/internal/validator"
)

var baseTime = time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T {
	return &v
}

// clock is a settable time source shared by the services under test
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	repo      *memoryRepository
	publisher *events.MockEventPublisher
	clock     *clock
	attempts  *attemptService
	grading   *gradingService
	results   ResultService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := testLogger()
	repo := newMemoryRepository()
	publisher := events.NewMockEventPublisher(logger)
	c := &clock{now: baseTime}

	grading := NewGradingService(repo, NewGradingEngine(), publisher, logger).(*gradingService)
	grading.now = c.Now

	attempts := NewAttemptService(repo, grading, publisher, logger, validator.New(), 30*time.Second).(*attemptService)
	attempts.now = c.Now

	h := &harness{
		repo:      repo,
		publisher: publisher,
		clock:     c,
		attempts:  attempts,
		grading:   grading,
		results:   NewResultService(repo, logger),
	}
	h.seedCapitalsTest()
	return h
}

// seedCapitalsTest adds test-1: two multiple choice questions, passing at 70.
func (h *harness) seedCapitalsTest() {
	h.repo.addQuestions(
		&models.Question{ID: "q-1", Type: models.MultipleChoice, QuestionText: "Capital of France?", Options: []string{"Paris", "Lyon"}, CorrectAnswer: "Paris"},
		&models.Question{ID: "q-2", Type: models.MultipleChoice, QuestionText: "Capital of Italy?", Options: []string{"Rome", "Milan"}, CorrectAnswer: "Rome"},
	)
	h.repo.addTest(&models.Test{
		ID:              "test-1",
		Title:           "Capitals",
		Status:          models.TestPublished,
		AttemptsAllowed: 2,
		PassingScore:    70,
		QuestionIDs:     []string{"q-1", "q-2"},
		CreatedBy:       "teacher-1",
	})
}

func answers(kv ...interface{}) validator.AnswerMap {
	out := validator.AnswerMap{}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)], _ = kv[i+1].(*models.Answer)
	}
	return out
}
