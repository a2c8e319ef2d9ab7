package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

const slotKeyPrefix = "question_"

// Answer is a student's answer to one question. Kind selects which of Choice
// or Value is meaningful.
type Answer struct {
	Kind   QuestionType `json:"kind" validate:"required,oneof=multiple_choice true_false"`
	Choice string       `json:"choice,omitempty"`
	Value  bool         `json:"value,omitempty"`
}

func MultipleChoiceAnswer(choice string) *Answer {
	return &Answer{Kind: MultipleChoice, Choice: choice}
}

func TrueFalseAnswer(value bool) *Answer {
	return &Answer{Kind: TrueFalse, Value: value}
}

// IsBlank reports whether the answer carries no response.
func (a *Answer) IsBlank() bool {
	if a == nil {
		return true
	}
	if a.Kind == TrueFalse {
		return false
	}
	return strings.TrimSpace(a.Choice) == ""
}

// String renders the answer the way it is stored on a question result.
func (a *Answer) String() string {
	if a == nil {
		return ""
	}
	if a.Kind == TrueFalse {
		if a.Value {
			return "True"
		}
		return "False"
	}
	return a.Choice
}

// SlotKey returns the positional key used by clients for the question at index.
func SlotKey(index int) string {
	return slotKeyPrefix + strconv.Itoa(index)
}

// ParseSlotKey converts a "question_{i}" key back into a position. Only the
// form SlotKey produces is accepted, so "question_01" never aliases
// "question_1".
func ParseSlotKey(key string) (int, error) {
	suffix, ok := strings.CutPrefix(key, slotKeyPrefix)
	if !ok {
		return 0, fmt.Errorf("invalid slot key %q", key)
	}
	index, err := strconv.Atoi(suffix)
	if err != nil || index < 0 || strconv.Itoa(index) != suffix {
		return 0, fmt.Errorf("invalid slot key %q", key)
	}
	return index, nil
}

// AnswerSheet holds answers by question position; a nil entry is unanswered.
type AnswerSheet []*Answer

// At returns the answer at index, nil when absent.
func (s AnswerSheet) At(index int) *Answer {
	if index < 0 || index >= len(s) {
		return nil
	}
	return s[index]
}

// With returns a copy of the sheet with the answer at index replaced.
func (s AnswerSheet) With(index int, answer *Answer) AnswerSheet {
	size := len(s)
	if index >= size {
		size = index + 1
	}
	out := make(AnswerSheet, size)
	copy(out, s)
	out[index] = answer
	return out.trim()
}

// Merge overlays updates onto a copy of the sheet. Untouched positions keep
// their answers; a nil update clears its position.
func (s AnswerSheet) Merge(updates map[int]*Answer) AnswerSheet {
	out := make(AnswerSheet, len(s))
	copy(out, s)
	for index, answer := range updates {
		if index < 0 {
			continue
		}
		for len(out) <= index {
			out = append(out, nil)
		}
		out[index] = answer
	}
	return out.trim()
}

// Answered counts positions holding a non-blank answer.
func (s AnswerSheet) Answered() int {
	n := 0
	for _, a := range s {
		if !a.IsBlank() {
			n++
		}
	}
	return n
}

// SheetFromMap builds a sheet from position-keyed answers.
func SheetFromMap(answers map[int]*Answer) AnswerSheet {
	return AnswerSheet{}.Merge(answers)
}

func (s AnswerSheet) trim() AnswerSheet {
	end := len(s)
	for end > 0 && s[end-1] == nil {
		end--
	}
	return s[:end]
}

func (s AnswerSheet) Value() (driver.Value, error) {
	if s == nil {
		s = AnswerSheet{}
	}
	return datatypes.JSONSlice[*Answer](s).Value()
}

func (s *AnswerSheet) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	return (*datatypes.JSONSlice[*Answer])(s).Scan(value)
}

func (AnswerSheet) GormDataType() string {
	return "json"
}

func (AnswerSheet) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return datatypes.JSONSlice[*Answer]{}.GormDBDataType(db, field)
}
