package entity

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// QuestionType selects how a submitted answer is checked.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeNumerical      QuestionType = "numerical"
	QuestionTypeTrueFalse      QuestionType = "true_false"
)

// IsValid reports whether t is one of the supported question types.
func (t QuestionType) IsValid() bool {
	switch t {
	case QuestionTypeMultipleChoice, QuestionTypeNumerical, QuestionTypeTrueFalse:
		return true
	}
	return false
}

// Option is one answer choice of a multiple-choice question.
type Option struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question is immutable once a test that references it has started.
type Question struct {
	ID            uint                        `gorm:"primaryKey" json:"id"`
	Type          QuestionType                `gorm:"size:32;not null" json:"type"`
	Subject       string                      `gorm:"size:100;not null;index" json:"subject"`
	Text          string                      `gorm:"type:text;not null" json:"text"`
	Options       datatypes.JSONSlice[Option] `gorm:"type:jsonb;not null;default:'[]'" json:"options,omitempty"`
	CorrectAnswer string                      `gorm:"size:255;not null;default:''" json:"correct_answer"`
	Marks         float64                     `gorm:"not null" json:"marks"`
	NegativeMarks *float64                    `json:"negative_marks,omitempty"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
}

// TableName sets the GORM table name
func (Question) TableName() string {
	return "questions"
}

// CorrectOptions returns the texts of all options flagged as correct.
func (q *Question) CorrectOptions() []string {
	var out []string
	for _, o := range q.Options {
		if o.IsCorrect {
			out = append(out, strings.TrimSpace(o.Text))
		}
	}
	return out
}

// HasOwnPenalty reports whether the question overrides the test-level negative marking.
func (q *Question) HasOwnPenalty() bool {
	return q.NegativeMarks != nil
}
