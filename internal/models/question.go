package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
)

// Question is read-only from the grading side; authoring happens elsewhere.
type Question struct {
	ID            string                      `json:"question_id" gorm:"primaryKey;size:36"`
	Type          QuestionType                `json:"question_type" gorm:"not null;size:32;index"`
	QuestionText  string                      `json:"question_text" gorm:"type:text;not null"`
	Options       datatypes.JSONSlice[string] `json:"options"`
	CorrectAnswer string                      `json:"correct_answer" gorm:"type:text;not null"`

	CreatedBy string    `json:"created_by" gorm:"size:255;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Question) TableName() string {
	return "questions"
}
