package entity

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// NegativeMarking is the per-test default penalty, used when a question
// does not specify its own.
type NegativeMarking struct {
	Enabled bool    `gorm:"not null;default:false" json:"enabled"`
	Marks   float64 `gorm:"not null;default:0" json:"marks"`
}

// Test is a scheduled examination with an ordered list of questions.
type Test struct {
	ID              uint                        `gorm:"primaryKey" json:"id"`
	Title           string                      `gorm:"size:200;not null" json:"title"`
	OwnerEmail      string                      `gorm:"size:255;not null;default:''" json:"owner_email,omitempty"`
	DurationMinutes int                         `gorm:"not null" json:"duration"`
	TotalMarks      float64                     `gorm:"not null" json:"total_marks"`
	NegativeMarking NegativeMarking             `gorm:"embedded;embeddedPrefix:negative_marking_" json:"negative_marking"`
	QuestionIDs     datatypes.JSONSlice[uint]   `gorm:"type:jsonb;not null;default:'[]'" json:"question_ids"`
	StartDate       time.Time                   `gorm:"not null;index" json:"start_date"`
	EndDate         time.Time                   `gorm:"not null;index" json:"end_date"`
	AllowedCenters  datatypes.JSONSlice[string] `gorm:"type:jsonb;not null;default:'[]'" json:"allowed_centers"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

// TableName sets the GORM table name
func (Test) TableName() string {
	return "tests"
}

// Validate checks the authoring-time invariants the scoring code relies on.
func (t *Test) Validate() error {
	if !t.EndDate.After(t.StartDate) {
		return errors.New("end date must be after start date")
	}
	if t.DurationMinutes <= 0 {
		return errors.New("duration must be positive")
	}
	if len(t.QuestionIDs) == 0 {
		return errors.New("test has no questions")
	}
	return nil
}

// Duration returns the per-attempt time allowance.
func (t *Test) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// Deadline returns the moment an attempt started at start must be closed:
// the earlier of start+duration and the end of the test window.
func (t *Test) Deadline(start time.Time) time.Time {
	d := start.Add(t.Duration())
	if t.EndDate.Before(d) {
		return t.EndDate
	}
	return d
}

// IsOpenAt reports whether ts falls inside the test window.
func (t *Test) IsOpenAt(ts time.Time) bool {
	return !ts.Before(t.StartDate) && ts.Before(t.EndDate)
}

// HasEnded reports whether the test window is closed at ts.
func (t *Test) HasEnded(ts time.Time) bool {
	return !ts.Before(t.EndDate)
}

// PenaltyFor returns the non-negative magnitude subtracted for an incorrect answer to q.
func (t *Test) PenaltyFor(q *Question) float64 {
	if q.NegativeMarks != nil {
		if *q.NegativeMarks < 0 {
			return -*q.NegativeMarks
		}
		return *q.NegativeMarks
	}
	if t.NegativeMarking.Enabled {
		if t.NegativeMarking.Marks < 0 {
			return -t.NegativeMarking.Marks
		}
		return t.NegativeMarking.Marks
	}
	return 0
}

// IsCenterAllowed reports whether students from center may sit the test.
// An empty list means every center is allowed.
func (t *Test) IsCenterAllowed(center string) bool {
	if len(t.AllowedCenters) == 0 {
		return true
	}
	for _, c := range t.AllowedCenters {
		if c == center {
			return true
		}
	}
	return false
}
