package entity

import (
	"time"

	"gorm.io/datatypes"
)

// Outcome is the tri-state correctness of one answer.
type Outcome string

const (
	OutcomeCorrect     Outcome = "correct"
	OutcomeIncorrect   Outcome = "incorrect"
	OutcomeUnattempted Outcome = "unattempted"
)

// ResultStatus describes how an attempt was closed.
type ResultStatus string

const (
	ResultStatusCompleted     ResultStatus = "completed"
	ResultStatusIncomplete    ResultStatus = "incomplete"
	ResultStatusAutoSubmitted ResultStatus = "auto_submitted"
)

// AnswerRecord is the scored form of one question in a Result.
type AnswerRecord struct {
	QuestionID     uint    `json:"question_id"`
	SelectedAnswer *string `json:"selected_answer"`
	Outcome        Outcome `json:"outcome"`
	MarksObtained  float64 `json:"marks_obtained"`
	TimeSpent      int     `json:"time_spent"`
}

// IsCorrect returns nil for an unattempted question.
func (a AnswerRecord) IsCorrect() *bool {
	if a.Outcome == OutcomeUnattempted {
		return nil
	}
	v := a.Outcome == OutcomeCorrect
	return &v
}

// Score holds the totals of one attempt.
type Score struct {
	Total       float64 `gorm:"not null;default:0" json:"total"`
	Correct     int     `gorm:"not null;default:0" json:"correct"`
	Incorrect   int     `gorm:"not null;default:0" json:"incorrect"`
	Unattempted int     `gorm:"not null;default:0" json:"unattempted"`
	Percentage  float64 `gorm:"not null;default:0" json:"percentage"`
}

// Rank of a result; zero means not ranked yet.
type Rank struct {
	Overall    int `gorm:"not null;default:0" json:"overall"`
	CenterWise int `gorm:"not null;default:0" json:"center_wise"`
}

// IsRanked reports whether the ranking pass has reached this result.
func (r Rank) IsRanked() bool {
	return r.Overall > 0
}

// SubjectScore is the per-subject breakdown of a Result.
type SubjectScore struct {
	Subject     string  `json:"subject"`
	Correct     int     `json:"correct"`
	Incorrect   int     `json:"incorrect"`
	Unattempted int     `json:"unattempted"`
	Marks       float64 `json:"marks"`
}

// Result is the finalized scoring record of one (student, test) pair.
// Everything except Rank is written once at finalization.
type Result struct {
	ID               uint                              `gorm:"primaryKey" json:"id"`
	StudentID        string                            `gorm:"size:64;not null;index;uniqueIndex:idx_student_test" json:"student_id"`
	TestID           uint                              `gorm:"not null;index;uniqueIndex:idx_student_test" json:"test_id"`
	Answers          datatypes.JSONSlice[AnswerRecord] `gorm:"type:jsonb;not null;default:'[]'" json:"answers"`
	Score            Score                             `gorm:"embedded;embeddedPrefix:score_" json:"score"`
	TimeTaken        int                               `gorm:"not null;default:0" json:"time_taken"`
	StartTime        time.Time                         `gorm:"not null" json:"start_time"`
	EndTime          time.Time                         `gorm:"not null" json:"end_time"`
	Status           ResultStatus                      `gorm:"size:20;not null" json:"status"`
	Rank             Rank                              `gorm:"embedded;embeddedPrefix:rank_" json:"rank"`
	SubjectWiseScore datatypes.JSONSlice[SubjectScore] `gorm:"type:jsonb;not null;default:'[]'" json:"subject_wise_score"`
	CreatedAt        time.Time                         `json:"created_at"`
	UpdatedAt        time.Time                         `json:"updated_at"`
}

// TableName sets the GORM table name
func (Result) TableName() string {
	return "results"
}

// RankUpdate is the only mutation allowed on a stored Result.
type RankUpdate struct {
	StudentID string
	Rank      Rank
}
