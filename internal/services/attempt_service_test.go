package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/quiz-grading-service/internal/events"
	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"github.com/SAP-F-2025/quiz-grading-service/internal/validator"
)

func (h *harness) seedTimedTest() {
	h.repo.addTest(&models.Test{
		ID:               "test-timed",
		Title:            "Quick quiz",
		Status:           models.TestPublished,
		AttemptsAllowed:  1,
		TimeLimitMinutes: ptr(1),
		PassingScore:     50,
		QuestionIDs:      []string{"q-1"},
		CreatedBy:        "teacher-1",
	})
}

func (h *harness) start(t *testing.T, testID, studentID string) *AttemptResponse {
	t.Helper()
	resp, err := h.attempts.Start(context.Background(), &StartAttemptRequest{TestID: testID}, studentID)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return resp
}

func TestStartAttempt(t *testing.T) {
	h := newHarness(t)

	resp := h.start(t, "test-1", "student-1")

	if resp.Status != models.AttemptInProgress || resp.AttemptNumber != 1 {
		t.Errorf("Expected in_progress attempt #1, got %s #%d", resp.Status, resp.AttemptNumber)
	}
	if resp.TotalQuestions != 2 || resp.AnsweredQuestions != 0 {
		t.Errorf("Expected 2 questions 0 answered, got %d %d", resp.TotalQuestions, resp.AnsweredQuestions)
	}
	if resp.RequiresTimeTracking || resp.RemainingSeconds != nil || resp.DeadlineAt != nil {
		t.Error("Expected an untimed attempt")
	}
	if got := h.publisher.EventsOfType(events.AttemptStarted); len(got) != 1 {
		t.Errorf("Expected 1 attempt.started event, got %d", len(got))
	}
}

func TestStartTimedAttempt(t *testing.T) {
	h := newHarness(t)
	h.seedTimedTest()

	resp := h.start(t, "test-timed", "student-1")

	if resp.TimeLimitSeconds == nil || *resp.TimeLimitSeconds != 60 {
		t.Fatalf("Expected 60 second limit, got %v", resp.TimeLimitSeconds)
	}
	if resp.DeadlineAt == nil || !resp.DeadlineAt.Equal(baseTime.Add(time.Minute)) {
		t.Errorf("Expected deadline one minute after start, got %v", resp.DeadlineAt)
	}
	if resp.RemainingSeconds == nil || *resp.RemainingSeconds != 60 {
		t.Errorf("Expected 60 seconds remaining, got %v", resp.RemainingSeconds)
	}
}

func TestStartWhileInProgress(t *testing.T) {
	h := newHarness(t)
	h.start(t, "test-1", "student-1")

	_, err := h.attempts.Start(context.Background(), &StartAttemptRequest{TestID: "test-1"}, "student-1")

	if !errors.Is(err, ErrInvalidStateTransition) || !errors.Is(err, ErrAttemptInProgress) {
		t.Fatalf("Expected attempt in progress transition error, got %v", err)
	}
	attempts, _ := h.repo.Attempt().GetByStudentAndTest(context.Background(), nil, "student-1", "test-1")
	if len(attempts) != 1 {
		t.Errorf("Expected 1 attempt row, got %d", len(attempts))
	}
}

func TestConcurrentStartsCreateOneAttempt(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.attempts.Start(context.Background(), &StartAttemptRequest{TestID: "test-1"}, "student-1"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, ErrAttemptInProgress) {
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("Expected exactly one start to succeed, got %d", succeeded)
	}
}

func TestStartRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.attempts.Start(ctx, &StartAttemptRequest{TestID: "missing"}, "student-1"); !errors.Is(err, ErrTestNotFound) {
		t.Errorf("Expected ErrTestNotFound, got %v", err)
	}

	var verrs validator.ValidationErrors
	if _, err := h.attempts.Start(ctx, &StartAttemptRequest{}, "student-1"); !errors.As(err, &verrs) {
		t.Errorf("Expected validation errors for an empty test id, got %v", err)
	}

	h.repo.addTest(&models.Test{ID: "test-draft", Status: models.TestDraft, AttemptsAllowed: 1})
	if _, err := h.attempts.Start(ctx, &StartAttemptRequest{TestID: "test-draft"}, "student-1"); !errors.Is(err, ErrTestNotAvailable) {
		t.Errorf("Expected ErrTestNotAvailable, got %v", err)
	}

	h.repo.addTest(&models.Test{ID: "test-code", Title: "Secret", Status: models.TestPublished, AttemptsAllowed: 1, AccessCode: ptr("open-sesame")})
	req := &StartAttemptRequest{TestID: "test-code", AccessCode: ptr("wrong")}
	if _, err := h.attempts.Start(ctx, req, "student-1"); !errors.Is(err, ErrInvalidAccessCode) {
		t.Errorf("Expected ErrInvalidAccessCode, got %v", err)
	}
	req.AccessCode = ptr("open-sesame")
	if _, err := h.attempts.Start(ctx, req, "student-1"); err != nil {
		t.Errorf("Expected the right code to start, got %v", err)
	}

	h.repo.addTest(&models.Test{ID: "test-broken", Title: "Broken", Status: models.TestPublished, AttemptsAllowed: 1, PassingScore: 150})
	if _, err := h.attempts.Start(ctx, &StartAttemptRequest{TestID: "test-broken"}, "student-1"); !errors.Is(err, ErrTestNotAvailable) {
		t.Errorf("Expected an invalid definition to be refused, got %v", err)
	}
}

func TestAttemptsExhausted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		resp := h.start(t, "test-1", "student-1")
		if resp.AttemptNumber != i {
			t.Errorf("Expected attempt number %d, got %d", i, resp.AttemptNumber)
		}
		if _, err := h.attempts.Submit(ctx, resp.ID, "student-1", &SubmitAttemptRequest{}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	_, err := h.attempts.Start(ctx, &StartAttemptRequest{TestID: "test-1"}, "student-1")
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Errorf("Expected ErrAttemptsExhausted, got %v", err)
	}
}

func TestSubmitGradesAllCorrect(t *testing.T) {
	h := newHarness(t)
	attempt := h.start(t, "test-1", "student-1")

	sub, err := h.attempts.Submit(context.Background(), attempt.ID, "student-1", &SubmitAttemptRequest{
		Answers: answers("question_0", models.MultipleChoiceAnswer("Paris"), "question_1", models.MultipleChoiceAnswer("rome")),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if sub.GradingStatus != GradingGraded || sub.Result == nil {
		t.Fatalf("Expected a graded submission, got %+v", sub)
	}
	if sub.Result.PercentageScore != 100 || !sub.Result.Passed || sub.Result.CorrectAnswers != 2 {
		t.Errorf("Unexpected result %+v", sub.Result)
	}

	stored := h.repo.attempt(attempt.ID)
	if stored.Status != models.AttemptSubmitted || stored.Score == nil || *stored.Score != 100 {
		t.Errorf("Expected stored attempt to be submitted with score 100, got %s %v", stored.Status, stored.Score)
	}
	if len(h.publisher.EventsOfType(events.AttemptSubmitted)) != 1 || len(h.publisher.EventsOfType(events.ResultGraded)) != 1 {
		t.Errorf("Expected submitted and graded events, got %v", h.publisher.GetPublishedEvents())
	}
}

func TestSubmitWithSavedAndBlankAnswers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	attempt := h.start(t, "test-1", "student-1")

	resp, err := h.attempts.SaveAnswer(ctx, attempt.ID, "student-1", "question_0", &SaveAnswerRequest{Answer: models.MultipleChoiceAnswer("Paris")})
	if err != nil {
		t.Fatalf("SaveAnswer failed: %v", err)
	}
	if resp.AnsweredQuestions != 1 {
		t.Errorf("Expected 1 answered question, got %d", resp.AnsweredQuestions)
	}

	sub, err := h.attempts.Submit(ctx, attempt.ID, "student-1", &SubmitAttemptRequest{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	r := sub.Result
	if r.PercentageScore != 50 || r.Passed || r.UnansweredQuestions != 1 || r.IncorrectAnswers != 0 {
		t.Errorf("Expected 50%% failed with one unanswered, got %+v", r)
	}
}

func TestGradingFailureLeavesSubmissionPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	attempt := h.start(t, "test-1", "student-1")

	h.repo.failResultCreate = errors.New("connection reset by peer")
	sub, err := h.attempts.Submit(ctx, attempt.ID, "student-1", &SubmitAttemptRequest{
		Answers: answers("question_0", models.MultipleChoiceAnswer("Paris")),
	})
	if err != nil {
		t.Fatalf("Expected the submission to succeed, got %v", err)
	}
	if sub.GradingStatus != GradingPending || sub.Result != nil {
		t.Fatalf("Expected pending grading, got %+v", sub)
	}
	if stored := h.repo.attempt(attempt.ID); stored.Status != models.AttemptSubmitted || stored.Score != nil {
		t.Errorf("Expected submitted attempt without score, got %s %v", stored.Status, stored.Score)
	}
	if h.repo.resultCount() != 0 {
		t.Errorf("Expected no result, got %d", h.repo.resultCount())
	}
	if len(h.publisher.EventsOfType(events.GradingFailed)) != 1 {
		t.Error("Expected a grading.failed event")
	}

	pending, err := h.results.GetResult(ctx, attempt.ID, "student-1")
	if err != nil || pending.GradingStatus != GradingPending {
		t.Errorf("Expected pending result, got %+v %v", pending, err)
	}

	h.repo.failResultCreate = nil
	report, err := h.grading.GradePending(ctx, 10)
	if err != nil {
		t.Fatalf("GradePending failed: %v", err)
	}
	if report.Scanned != 1 || report.Graded != 1 || report.Failed != 0 {
		t.Errorf("Unexpected report %+v", report)
	}
	if h.repo.resultCount() != 1 {
		t.Fatalf("Expected exactly one result, got %d", h.repo.resultCount())
	}

	graded, err := h.results.GetResult(ctx, attempt.ID, "student-1")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if graded.GradingStatus != GradingGraded || graded.Result.PercentageScore != 50 {
		t.Errorf("Expected graded 50%%, got %+v", graded)
	}

	again, err := h.grading.GradePending(ctx, 10)
	if err != nil || again.Scanned != 0 {
		t.Errorf("Expected nothing left to grade, got %+v %v", again, err)
	}
}

func TestGradePendingReportsFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	attempt := h.start(t, "test-1", "student-1")

	h.repo.failGetQuestions = errors.New("timeout")
	if _, err := h.attempts.Submit(ctx, attempt.ID, "student-1", &SubmitAttemptRequest{}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	report, err := h.grading.GradePending(ctx, 10)
	if err != nil {
		t.Fatalf("GradePending failed: %v", err)
	}
	if report.Failed != 1 || len(report.FailedAttemptIDs) != 1 || report.FailedAttemptIDs[0] != attempt.ID {
		t.Errorf("Expected the attempt to be reported as failed, got %+v", report)
	}
}

func TestGradePendingRotatesPastFailingAttempts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.repo.addTest(&models.Test{
		ID:              "test-2",
		Title:           "Retired",
		Status:          models.TestPublished,
		AttemptsAllowed: 1,
		PassingScore:    70,
		QuestionIDs:     []string{"q-1"},
		CreatedBy:       "teacher-1",
	})

	h.repo.failGetQuestions = errors.New("timeout")
	stuck := h.start(t, "test-2", "student-1")
	if _, err := h.attempts.Submit(ctx, stuck.ID, "student-1", &SubmitAttemptRequest{}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	h.repo.removeTest("test-2")

	h.clock.Advance(time.Minute)
	fresh := h.start(t, "test-1", "student-2")
	if _, err := h.attempts.Submit(ctx, fresh.ID, "student-2", &SubmitAttemptRequest{
		Answers: answers("question_0", models.MultipleChoiceAnswer("Paris")),
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	h.repo.failGetQuestions = nil

	// batch of one: the attempt whose test is gone fails every run
	first, err := h.grading.GradePending(ctx, 1)
	if err != nil {
		t.Fatalf("GradePending failed: %v", err)
	}
	if first.Failed != 1 || first.FailedAttemptIDs[0] != stuck.ID {
		t.Fatalf("Expected the oldest attempt to fail first, got %+v", first)
	}

	second, err := h.grading.GradePending(ctx, 1)
	if err != nil {
		t.Fatalf("GradePending failed: %v", err)
	}
	if second.Graded != 1 {
		t.Errorf("Expected the newer attempt to be graded, got %+v", second)
	}
	if stored := h.repo.attempt(fresh.ID); stored.Score == nil || *stored.Score != 50 {
		t.Errorf("Expected the newer attempt scored 50, got %v", stored.Score)
	}

	third, err := h.grading.GradePending(ctx, 1)
	if err != nil || third.Scanned != 1 || third.Failed != 1 {
		t.Errorf("Expected only the failing attempt left, got %+v %v", third, err)
	}
	if stored := h.repo.attempt(stuck.ID); stored.GradingFailures != 3 || stored.LastGradingErrorAt == nil {
		t.Errorf("Expected 3 recorded failures, got %d", stored.GradingFailures)
	}
}

func TestGradeAttemptIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	attempt := h.start(t, "test-1", "student-1")

	sub, err := h.attempts.Submit(ctx, attempt.ID, "student-1", &SubmitAttemptRequest{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	again, err := h.grading.GradeAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("GradeAttempt failed: %v", err)
	}
	if again.ID != sub.Result.ID {
		t.Errorf("Expected the stored result %s, got %s", sub.Result.ID, again.ID)
	}
	if h.repo.resultCreates != 1 {
		t.Errorf("Expected one result insert, got %d", h.repo.resultCreates)
	}
}

func TestGradeAttemptRequiresSubmission(t *testing.T) {
	h := newHarness(t)
	attempt := h.start(t, "test-1", "student-1")

	_, err := h.grading.GradeAttempt(context.Background(), attempt.ID)
	if !errors.Is(err, ErrAttemptNotSubmitted) {
		t.Errorf("Expected ErrAttemptNotSubmitted, got %v", err)
	}

	if _, err := h.grading.GradeAttempt(context.Background(), "missing"); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("Expected ErrAttemptNotFound, got %v", err)
	}
}

func TestTerminalAttemptRejectsWrites(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	attempt := h.start(t, "test-1", "student-1")

	if _, err := h.attempts.Submit(ctx, attempt.ID, "student-1", &SubmitAttemptRequest{}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"submit", func() error {
			_, err := h.attempts.Submit(ctx, attempt.ID, "student-1", &SubmitAttemptRequest{})
			return err
		}},
		{"expire", func() error {
			_, err := h.attempts.Expire(ctx, attempt.ID)
			return err
		}},
		{"save answer", func() error {
			_, err := h.attempts.SaveAnswer(ctx, attempt.ID, "student-1", "question_0", &SaveAnswerRequest{Answer: models.MultipleChoiceAnswer("Lyon")})
			return err
		}},
		{"update", func() error {
			_, err := h.attempts.Update(ctx, attempt.ID, "student-1", &UpdateAttemptRequest{CurrentQuestion: ptr(1)})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, ErrAttemptNotActive) || !errors.Is(err, ErrInvalidStateTransition) {
				t.Errorf("Expected attempt not active, got %v", err)
			}
		})
	}

	if stored := h.repo.attempt(attempt.ID); stored.Answers.At(0) != nil {
		t.Error("Expected answers to be frozen after submission")
	}
}

func TestConcurrentSubmitAndExpireProduceOneResult(t *testing.T) {
	h := newHarness(t)
	h.seedTimedTest()
	attempt := h.start(t, "test-timed", "student-1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = h.attempts.Submit(context.Background(), attempt.ID, "student-1", &SubmitAttemptRequest{})
			} else {
				_, err = h.attempts.Expire(context.Background(), attempt.ID)
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrAttemptNotActive) {
				t.Errorf("Unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("Expected exactly one terminal transition, got %d", succeeded)
	}
	if h.repo.resultCount() != 1 {
		t.Errorf("Expected exactly one result, got %d", h.repo.resultCount())
	}
}

func TestAttemptOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	attempt := h.start(t, "test-1", "student-1")

	_, err := h.attempts.Get(ctx, attempt.ID, "student-2")
	var permErr *PermissionError
	if !errors.As(err, &permErr) || !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Expected permission error, got %v", err)
	}

	if _, err := h.attempts.Submit(ctx, attempt.ID, "student-2", &SubmitAttemptRequest{}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected another student's submit to be refused, got %v", err)
	}
	if stored := h.repo.attempt(attempt.ID); stored.Status != models.AttemptInProgress {
		t.Errorf("Expected the attempt to stay in progress, got %s", stored.Status)
	}

	if _, err := h.attempts.Get(ctx, "missing", "student-1"); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("Expected ErrAttemptNotFound, got %v", err)
	}
}

func TestSaveAnswerValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	attempt := h.start(t, "test-1", "student-1")

	tests := []struct {
		name string
		slot string
		rule string
	}{
		{"malformed slot", "q0", "slot_key"},
		{"negative slot", "question_-1", "slot_key"},
		{"slot out of range", "question_2", "slot_range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.attempts.SaveAnswer(ctx, attempt.ID, "student-1", tt.slot, &SaveAnswerRequest{Answer: models.MultipleChoiceAnswer("Paris")})
			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Expected validation errors, got %v", err)
			}
			if verrs[0].Rule != tt.rule {
				t.Errorf("Expected rule %s, got %s", tt.rule, verrs[0].Rule)
			}
		})
	}
}

func TestAnswerWritesNeedTheTest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	attempt := h.start(t, "test-1", "student-1")
	h.repo.removeTest("test-1")

	_, err := h.attempts.SaveAnswer(ctx, attempt.ID, "student-1", "question_20000000", &SaveAnswerRequest{Answer: models.MultipleChoiceAnswer("Paris")})
	if !errors.Is(err, ErrTestNotFound) {
		t.Errorf("SaveAnswer: expected ErrTestNotFound, got %v", err)
	}
	_, err = h.attempts.SaveAllAnswers(ctx, attempt.ID, "student-1", &SaveAllAnswersRequest{
		Answers: answers("question_5000", models.MultipleChoiceAnswer("Paris")),
	})
	if !errors.Is(err, ErrTestNotFound) {
		t.Errorf("SaveAllAnswers: expected ErrTestNotFound, got %v", err)
	}
	_, err = h.attempts.Update(ctx, attempt.ID, "student-1", &UpdateAttemptRequest{
		Answers: answers("question_5000", models.MultipleChoiceAnswer("Paris")),
	})
	if !errors.Is(err, ErrTestNotFound) {
		t.Errorf("Update: expected ErrTestNotFound, got %v", err)
	}
	_, err = h.attempts.Submit(ctx, attempt.ID, "student-1", &SubmitAttemptRequest{})
	if !errors.Is(err, ErrTestNotFound) {
		t.Errorf("Submit: expected ErrTestNotFound, got %v", err)
	}

	stored := h.repo.attempt(attempt.ID)
	if len(stored.Answers) != 0 || stored.Status != models.AttemptInProgress {
		t.Errorf("Expected the attempt untouched, got %d answers in %s", len(stored.Answers), stored.Status)
	}

	// reads still work without the test
	resp, err := h.attempts.Get(ctx, attempt.ID, "student-1")
	if err != nil || resp.TotalQuestions != 0 {
		t.Errorf("Expected the attempt without question count, got %+v %v", resp, err)
	}
}

func TestAliasedSlotKeysAreRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	attempt := h.start(t, "test-1", "student-1")

	_, err := h.attempts.SaveAllAnswers(ctx, attempt.ID, "student-1", &SaveAllAnswersRequest{
		Answers: answers(
			"question_1", models.MultipleChoiceAnswer("Rome"),
			"question_01", models.MultipleChoiceAnswer("Milan"),
		),
	})
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Expected validation errors, got %v", err)
	}
	if verrs[0].Rule != "slot_key" {
		t.Errorf("Expected rule slot_key, got %s", verrs[0].Rule)
	}

	_, err = h.attempts.SaveAnswer(ctx, attempt.ID, "student-1", "question_+1", &SaveAnswerRequest{Answer: models.MultipleChoiceAnswer("Milan")})
	if !errors.As(err, &verrs) {
		t.Errorf("Expected validation errors for question_+1, got %v", err)
	}
	if stored := h.repo.attempt(attempt.ID); len(stored.Answers) != 0 {
		t.Errorf("Expected no answers stored, got %d", len(stored.Answers))
	}
}

func TestSubmitReplace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		replace bool
		score   float64
	}{
		{"merge keeps saved answers", false, 100},
		{"replace drops saved answers", true, 50},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			student := fmt.Sprintf("student-%d", i+1)
			attempt := h.start(t, "test-1", student)
			if _, err := h.attempts.SaveAnswer(ctx, attempt.ID, student, "question_1", &SaveAnswerRequest{Answer: models.MultipleChoiceAnswer("Rome")}); err != nil {
				t.Fatalf("SaveAnswer failed: %v", err)
			}

			sub, err := h.attempts.Submit(ctx, attempt.ID, student, &SubmitAttemptRequest{
				Answers: answers("question_0", models.MultipleChoiceAnswer("Paris")),
				Replace: tt.replace,
			})
			if err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
			if sub.Result == nil || sub.Result.PercentageScore != tt.score {
				t.Fatalf("Expected score %v, got %+v", tt.score, sub.Result)
			}
			if tt.replace && sub.Result.UnansweredQuestions != 1 {
				t.Errorf("Expected the saved answer to be dropped, got %d unanswered", sub.Result.UnansweredQuestions)
			}
		})
	}
}

func TestSaveAllAnswersMergeAndReplace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	attempt := h.start(t, "test-1", "student-1")

	_, err := h.attempts.SaveAllAnswers(ctx, attempt.ID, "student-1", &SaveAllAnswersRequest{
		Answers:         answers("question_0", models.MultipleChoiceAnswer("Paris"), "question_1", models.MultipleChoiceAnswer("Milan")),
		CurrentQuestion: ptr(1),
	})
	if err != nil {
		t.Fatalf("SaveAllAnswers failed: %v", err)
	}

	merged, err := h.attempts.SaveAllAnswers(ctx, attempt.ID, "student-1", &SaveAllAnswersRequest{
		Answers: answers("question_1", models.MultipleChoiceAnswer("Rome")),
	})
	if err != nil {
		t.Fatalf("SaveAllAnswers merge failed: %v", err)
	}
	if merged.AnsweredQuestions != 2 || merged.Answers.At(1).Choice != "Rome" || merged.CurrentQuestion != 1 {
		t.Errorf("Expected merge to keep question 0 and update question 1, got %+v", merged.Answers)
	}

	replaced, err := h.attempts.SaveAllAnswers(ctx, attempt.ID, "student-1", &SaveAllAnswersRequest{
		Answers: answers("question_1", models.MultipleChoiceAnswer("Rome")),
		Replace: true,
	})
	if err != nil {
		t.Fatalf("SaveAllAnswers replace failed: %v", err)
	}
	if replaced.AnsweredQuestions != 1 || replaced.Answers.At(0) != nil {
		t.Errorf("Expected replace to drop question 0, got %+v", replaced.Answers)
	}

	cleared, err := h.attempts.SaveAllAnswers(ctx, attempt.ID, "student-1", &SaveAllAnswersRequest{
		Answers: answers("question_1", nil),
	})
	if err != nil {
		t.Fatalf("SaveAllAnswers clear failed: %v", err)
	}
	if cleared.AnsweredQuestions != 0 {
		t.Errorf("Expected a null answer to clear the slot, got %d answered", cleared.AnsweredQuestions)
	}

	_, err = h.attempts.SaveAllAnswers(ctx, attempt.ID, "student-1", &SaveAllAnswersRequest{CurrentQuestion: ptr(5)})
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Errorf("Expected current_question out of range to be rejected, got %v", err)
	}
}

func TestUpdateTimeRemainingOnlyDecreases(t *testing.T) {
	h := newHarness(t)
	h.seedTimedTest()
	ctx := context.Background()
	attempt := h.start(t, "test-timed", "student-1")

	resp, err := h.attempts.Update(ctx, attempt.ID, "student-1", &UpdateAttemptRequest{TimeRemaining: ptr(500)})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if *resp.TimeRemaining != 60 {
		t.Errorf("Expected time remaining to stay at 60, got %d", *resp.TimeRemaining)
	}

	resp, err = h.attempts.Update(ctx, attempt.ID, "student-1", &UpdateAttemptRequest{TimeRemaining: ptr(25)})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if *resp.RemainingSeconds != 25 {
		t.Errorf("Expected 25 seconds remaining, got %d", *resp.RemainingSeconds)
	}

	h.clock.Advance(5 * time.Second)
	remaining, err := h.attempts.TimeRemaining(ctx, attempt.ID, "student-1")
	if err != nil {
		t.Fatalf("TimeRemaining failed: %v", err)
	}
	if !remaining.Timed || *remaining.RemainingSeconds != 25 {
		t.Errorf("Expected the lower client value to win, got %+v", remaining)
	}
}

func TestUpdateIgnoresTimeOnUntimedAttempt(t *testing.T) {
	h := newHarness(t)
	attempt := h.start(t, "test-1", "student-1")

	resp, err := h.attempts.Update(context.Background(), attempt.ID, "student-1", &UpdateAttemptRequest{TimeRemaining: ptr(30)})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if resp.TimeRemaining != nil || resp.RemainingSeconds != nil {
		t.Error("Expected no time tracking on an untimed attempt")
	}
}

func TestTimeRemaining(t *testing.T) {
	h := newHarness(t)
	h.seedTimedTest()
	ctx := context.Background()
	attempt := h.start(t, "test-timed", "student-1")

	h.clock.Advance(20 * time.Second)
	resp, err := h.attempts.TimeRemaining(ctx, attempt.ID, "student-1")
	if err != nil {
		t.Fatalf("TimeRemaining failed: %v", err)
	}
	if *resp.RemainingSeconds != 40 || resp.TimeUp {
		t.Errorf("Expected 40 seconds left, got %+v", resp)
	}

	h.clock.Advance(time.Minute)
	resp, _ = h.attempts.TimeRemaining(ctx, attempt.ID, "student-1")
	if *resp.RemainingSeconds != 0 || !resp.TimeUp {
		t.Errorf("Expected time up, got %+v", resp)
	}
}

func TestExpireForStudent(t *testing.T) {
	h := newHarness(t)
	h.seedTimedTest()
	ctx := context.Background()

	untimed := h.start(t, "test-1", "student-1")
	if _, err := h.attempts.ExpireForStudent(ctx, untimed.ID, "student-1"); !errors.Is(err, ErrAttemptNotTimed) {
		t.Errorf("Expected ErrAttemptNotTimed, got %v", err)
	}

	timed := h.start(t, "test-timed", "student-1")
	if _, err := h.attempts.SaveAnswer(ctx, timed.ID, "student-1", "question_0", &SaveAnswerRequest{Answer: models.MultipleChoiceAnswer("Paris")}); err != nil {
		t.Fatalf("SaveAnswer failed: %v", err)
	}

	h.clock.Advance(time.Minute)
	sub, err := h.attempts.ExpireForStudent(ctx, timed.ID, "student-1")
	if err != nil {
		t.Fatalf("ExpireForStudent failed: %v", err)
	}
	if sub.Attempt.Status != models.AttemptExpired || *sub.Attempt.TimeRemaining != 0 {
		t.Errorf("Expected expired with no time left, got %s %v", sub.Attempt.Status, sub.Attempt.TimeRemaining)
	}
	if sub.Result == nil || sub.Result.PercentageScore != 100 {
		t.Errorf("Expected saved answers to be graded, got %+v", sub.Result)
	}
	if len(h.publisher.EventsOfType(events.AttemptExpired)) != 1 {
		t.Error("Expected an attempt.expired event")
	}
}

func TestExpireOverdueHonorsGrace(t *testing.T) {
	h := newHarness(t)
	h.seedTimedTest()
	ctx := context.Background()
	timed := h.start(t, "test-timed", "student-1")
	untimed := h.start(t, "test-1", "student-1")

	count, err := h.attempts.ExpireOverdue(ctx, baseTime.Add(time.Minute+10*time.Second), 10)
	if err != nil || count != 0 {
		t.Fatalf("Expected nothing expired inside the grace period, got %d %v", count, err)
	}

	count, err = h.attempts.ExpireOverdue(ctx, baseTime.Add(time.Minute+31*time.Second), 10)
	if err != nil || count != 1 {
		t.Fatalf("Expected one expired attempt, got %d %v", count, err)
	}

	if stored := h.repo.attempt(timed.ID); stored.Status != models.AttemptExpired || stored.Score == nil {
		t.Errorf("Expected the timed attempt expired and graded, got %s %v", stored.Status, stored.Score)
	}
	if stored := h.repo.attempt(untimed.ID); stored.Status != models.AttemptInProgress {
		t.Errorf("Expected the untimed attempt untouched, got %s", stored.Status)
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	h := newHarness(t)
	h.publisher.FailWith(errors.New("broker down"))

	attempt := h.start(t, "test-1", "student-1")
	sub, err := h.attempts.Submit(context.Background(), attempt.ID, "student-1", &SubmitAttemptRequest{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if sub.GradingStatus != GradingGraded {
		t.Errorf("Expected grading to complete, got %s", sub.GradingStatus)
	}
}

func TestStorageErrorsAreRetryable(t *testing.T) {
	h := newHarness(t)
	attempt := h.start(t, "test-1", "student-1")

	h.repo.failGetAttempt = errors.New("connection refused")
	_, err := h.attempts.Get(context.Background(), attempt.ID, "student-1")
	if !errors.Is(err, ErrStorageUnavailable) || !IsRetryable(err) {
		t.Errorf("Expected a retryable storage error, got %v", err)
	}
}
