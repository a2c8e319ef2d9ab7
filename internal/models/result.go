package models

import (
	"time"

	"gorm.io/datatypes"
)

// QuestionResult is the grading outcome of one question in one attempt.
type QuestionResult struct {
	QuestionID     string       `json:"question_id"`
	QuestionNumber int          `json:"question_number"` // 1-based position in the test
	QuestionType   QuestionType `json:"question_type"`
	QuestionText   string       `json:"question_text"`
	CorrectAnswer  string       `json:"correct_answer"`
	StudentAnswer  string       `json:"student_answer"` // empty when unanswered
	Answered       bool         `json:"answered"`
	IsCorrect      bool         `json:"is_correct"`
	PointsEarned   float64      `json:"points_earned"`
	PointsPossible float64      `json:"points_possible"`
}

// TestResult is the immutable graded outcome of one attempt.
type TestResult struct {
	ID        string `json:"result_id" gorm:"primaryKey;size:36"`
	AttemptID string `json:"attempt_id" gorm:"not null;size:36;uniqueIndex"`
	TestID    string `json:"test_id" gorm:"not null;size:36;index"`
	StudentID string `json:"student_id" gorm:"not null;size:255;index"`

	TotalQuestions      int     `json:"total_questions"`
	CorrectAnswers      int     `json:"correct_answers"`
	IncorrectAnswers    int     `json:"incorrect_answers"`
	UnansweredQuestions int     `json:"unanswered_questions"`
	TotalPointsEarned   float64 `json:"total_points_earned"`
	TotalPointsPossible float64 `json:"total_points_possible"`
	PercentageScore     float64 `json:"percentage_score"`
	PassingScore        float64 `json:"passing_score"`
	Passed              bool    `json:"passed"`
	TimeTaken           *int    `json:"time_taken"` // seconds

	QuestionResults    datatypes.JSONSlice[QuestionResult] `json:"question_results"`
	SkippedQuestionIDs datatypes.JSONSlice[string]         `json:"skipped_question_ids"`

	GradedAt  time.Time `json:"graded_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
}

func (TestResult) TableName() string {
	return "test_results"
}
