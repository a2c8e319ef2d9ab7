package validator

import (
	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
)

// AnswerMap is the wire form of answers: slot keys to answers. A null value
// clears the slot.
type AnswerMap map[string]*models.Answer

// Positions converts slot keys to question positions.
func (m AnswerMap) Positions() (map[int]*models.Answer, error) {
	out := make(map[int]*models.Answer, len(m))
	for key, answer := range m {
		index, err := models.ParseSlotKey(key)
		if err != nil {
			return nil, ValidationErrors{{
				Field:   "answers",
				Message: "must look like question_{n}",
				Value:   key,
				Rule:    "slot_key",
			}}
		}
		out[index] = answer
	}
	return out, nil
}

// StartAttemptRequest represents the request structure for starting an attempt
type StartAttemptRequest struct {
	TestID     string  `json:"test_id" validate:"required,max=36"`
	AccessCode *string `json:"access_code" validate:"omitempty,max=64"`
}

// SaveAnswerRequest saves one answer; the slot comes from the path
type SaveAnswerRequest struct {
	Answer *models.Answer `json:"answer"`
}

// SaveAllAnswersRequest saves several answers at once. Replace discards
// slots missing from Answers.
type SaveAllAnswersRequest struct {
	Answers         AnswerMap `json:"answers" validate:"dive,keys,slot_key,endkeys"`
	CurrentQuestion *int      `json:"current_question" validate:"omitempty,min=0"`
	Replace         bool      `json:"replace"`
}

// UpdateAttemptRequest is a partial update of an in-progress attempt
type UpdateAttemptRequest struct {
	CurrentQuestion *int      `json:"current_question" validate:"omitempty,min=0"`
	Answers         AnswerMap `json:"answers" validate:"omitempty,dive,keys,slot_key,endkeys"`
	TimeRemaining   *int      `json:"time_remaining" validate:"omitempty,min=0"`
}

// SubmitAttemptRequest carries the final answers, merged over saved ones.
// Replace makes them the whole sheet.
type SubmitAttemptRequest struct {
	Answers AnswerMap `json:"answers" validate:"omitempty,dive,keys,slot_key,endkeys"`
	Replace bool      `json:"replace"`
}
