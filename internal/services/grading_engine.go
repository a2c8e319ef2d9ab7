package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
)

// Comparator reports whether a non-blank student answer matches the stored
// correct answer.
type Comparator func(answer *models.Answer, correct string) bool

type GradingWarningKind string

const (
	WarningMissingQuestion     GradingWarningKind = "missing_question"
	WarningUnknownQuestionType GradingWarningKind = "unknown_question_type"
)

// GradingWarning is a problem that was recovered from while grading.
type GradingWarning struct {
	Kind           GradingWarningKind `json:"kind"`
	QuestionID     string             `json:"question_id"`
	QuestionNumber int                `json:"question_number"`
	Message        string             `json:"message"`
}

// GradingEngine scores attempts. It is pure: no storage, no clock.
type GradingEngine struct {
	comparators map[models.QuestionType]Comparator
}

type GradingOption func(*GradingEngine)

// WithComparator registers or replaces the comparator of a question type.
func WithComparator(questionType models.QuestionType, cmp Comparator) GradingOption {
	return func(e *GradingEngine) {
		e.comparators[questionType] = cmp
	}
}

func NewGradingEngine(opts ...GradingOption) *GradingEngine {
	e := &GradingEngine{
		comparators: map[models.QuestionType]Comparator{
			models.MultipleChoice: CompareMultipleChoice,
			models.TrueFalse:      CompareTrueFalse,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CompareMultipleChoice is a case-insensitive comparison of trimmed text.
func CompareMultipleChoice(answer *models.Answer, correct string) bool {
	return strings.EqualFold(strings.TrimSpace(answer.String()), strings.TrimSpace(correct))
}

// CompareTrueFalse compares both sides as booleans.
func CompareTrueFalse(answer *models.Answer, correct string) bool {
	student := answer.Value
	if answer.Kind != models.TrueFalse {
		student = NormalizeBool(answer.Choice)
	}
	return student == NormalizeBool(correct)
}

// NormalizeBool maps true/t/yes/y/1 to true. Every other token, including
// false/f/no/n/0, is false.
func NormalizeBool(token string) bool {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "true", "t", "yes", "y", "1":
		return true
	default:
		return false
	}
}

// Grade scores attempt against the test's questions in test order. Questions
// missing from questions are skipped and lower points possible. Every
// question is worth one point with no partial credit.
func (e *GradingEngine) Grade(attempt *models.Attempt, test *models.Test, questions map[string]*models.Question, gradedAt time.Time) (*models.TestResult, []GradingWarning) {
	var warnings []GradingWarning

	result := &models.TestResult{
		AttemptID:          attempt.ID,
		TestID:             attempt.TestID,
		StudentID:          attempt.StudentID,
		PassingScore:       test.PassingScore,
		GradedAt:           gradedAt.UTC(),
		QuestionResults:    make([]models.QuestionResult, 0, len(test.QuestionIDs)),
		SkippedQuestionIDs: []string{},
	}

	for i, questionID := range test.QuestionIDs {
		number := i + 1
		question, ok := questions[questionID]
		if !ok || question == nil {
			warnings = append(warnings, GradingWarning{
				Kind:           WarningMissingQuestion,
				QuestionID:     questionID,
				QuestionNumber: number,
				Message:        fmt.Sprintf("question %s not found, skipped", questionID),
			})
			result.SkippedQuestionIDs = append(result.SkippedQuestionIDs, questionID)
			continue
		}

		answer := attempt.Answers.At(i)
		qr := models.QuestionResult{
			QuestionID:     question.ID,
			QuestionNumber: number,
			QuestionType:   question.Type,
			QuestionText:   question.QuestionText,
			CorrectAnswer:  question.CorrectAnswer,
			Answered:       !answer.IsBlank(),
			PointsPossible: 1,
		}
		if qr.Answered {
			qr.StudentAnswer = answer.String()
		}

		cmp, known := e.comparators[question.Type]
		if !known {
			warnings = append(warnings, GradingWarning{
				Kind:           WarningUnknownQuestionType,
				QuestionID:     question.ID,
				QuestionNumber: number,
				Message:        fmt.Sprintf("unknown question type %q graded incorrect", question.Type),
			})
		}

		if qr.Answered && known {
			qr.IsCorrect = cmp(answer, question.CorrectAnswer)
		}
		if qr.IsCorrect {
			qr.PointsEarned = qr.PointsPossible
		}

		switch {
		case !qr.Answered:
			result.UnansweredQuestions++
		case qr.IsCorrect:
			result.CorrectAnswers++
		default:
			result.IncorrectAnswers++
		}

		result.TotalPointsEarned += qr.PointsEarned
		result.TotalPointsPossible += qr.PointsPossible
		result.QuestionResults = append(result.QuestionResults, qr)
	}

	result.TotalQuestions = len(result.QuestionResults)
	if result.TotalPointsPossible > 0 {
		result.PercentageScore = 100 * result.TotalPointsEarned / result.TotalPointsPossible
	}
	result.Passed = result.PercentageScore >= test.PassingScore

	if attempt.SubmittedAt != nil && !attempt.StartedAt.IsZero() {
		taken := int(attempt.SubmittedAt.Sub(attempt.StartedAt) / time.Second)
		if taken < 0 {
			taken = 0
		}
		result.TimeTaken = &taken
	}

	return result, warnings
}
