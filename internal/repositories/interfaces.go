package repositories

import (
	"time"

	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type ResultFilters struct {
	Passed    *bool      `json:"passed"`
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
	SortBy    string     `json:"sort_by"`    // "graded_at", "percentage_score"
	SortOrder string     `json:"sort_order"` // "asc", "desc"
}

type TestFilters struct {
	Status    *models.TestStatus `json:"status"`
	CreatedBy *string            `json:"created_by"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

// ===== WRITE PAYLOADS =====

// AttemptProgress carries the mutable fields of an in-progress attempt. Nil
// fields are left untouched.
type AttemptProgress struct {
	CurrentQuestion *int
	Answers         *models.AnswerSheet
	TimeRemaining   *int
}

// AttemptTransition moves an attempt out of in_progress.
type AttemptTransition struct {
	To            models.AttemptStatus
	At            time.Time
	Answers       *models.AnswerSheet // nil keeps the persisted answers
	TimeRemaining *int
}

// ===== SHARED STATISTICS STRUCTS =====

type ResultSummary struct {
	TotalResults      int     `json:"total_results"`
	PassedResults     int     `json:"passed_results"`
	AveragePercentage float64 `json:"average_percentage"`
	PassRate          float64 `json:"pass_rate"`
}
