package models

import (
	"time"

	"gorm.io/datatypes"
)

type TestStatus string

const (
	TestDraft     TestStatus = "draft"
	TestPublished TestStatus = "published"
	TestArchived  TestStatus = "archived"
)

// Test is the definition a student attempts. It is owned by the authoring
// side and only read here.
type Test struct {
	ID     string     `json:"test_id" gorm:"primaryKey;size:36"`
	Title  string     `json:"title" gorm:"not null;size:200" validate:"required,max=200"`
	Status TestStatus `json:"status" gorm:"not null;size:20;default:draft;index" validate:"required,oneof=draft published archived"`

	// Publication window, nil sides are open
	AvailableFrom  *time.Time `json:"available_from"`
	AvailableUntil *time.Time `json:"available_until"`
	AccessCode     *string    `json:"access_code,omitempty" gorm:"size:64"` // never rendered to students

	AttemptsAllowed  int     `json:"attempts_allowed" gorm:"not null;default:1" validate:"attempts_allowed"`
	TimeLimitMinutes *int    `json:"time_limit_minutes" validate:"omitempty,min=1,max=1440"`
	PassingScore     float64 `json:"passing_score" gorm:"not null" validate:"passing_score"`

	QuestionIDs datatypes.JSONSlice[string] `json:"question_ids"`

	CreatedBy string    `json:"created_by" gorm:"not null;size:255;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Test) TableName() string {
	return "tests"
}

// RequiresAccessCode reports whether starting the test needs a code.
func (t *Test) RequiresAccessCode() bool {
	return t.AccessCode != nil && *t.AccessCode != ""
}

// TimeLimitSeconds converts the configured limit, nil for untimed tests.
func (t *Test) TimeLimitSeconds() *int {
	if t.TimeLimitMinutes == nil || *t.TimeLimitMinutes <= 0 {
		return nil
	}
	secs := *t.TimeLimitMinutes * 60
	return &secs
}
