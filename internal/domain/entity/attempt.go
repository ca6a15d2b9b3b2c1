package entity

import "time"

// AttemptAnswer is one raw entry of a submitted attempt.
// TimeSpent is in seconds.
type AttemptAnswer struct {
	QuestionID     uint    `json:"question_id"`
	SelectedAnswer *string `json:"selected_answer"`
	TimeSpent      int     `json:"time_spent"`
}

// Attempt is the input of finalization. It is never stored as is.
// SubmitTime is nil when nobody pressed submit (timer expiry).
type Attempt struct {
	StudentID  string          `json:"student_id"`
	TestID     uint            `json:"test_id"`
	Answers    []AttemptAnswer `json:"answers"`
	StartTime  time.Time       `json:"start_time"`
	SubmitTime *time.Time      `json:"submit_time,omitempty"`
}

// StudentCenter maps a student to the center they sit the test at.
type StudentCenter struct {
	StudentID string    `gorm:"primaryKey;size:64" json:"student_id"`
	CenterID  string    `gorm:"size:64;not null;index" json:"center_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the GORM table name
func (StudentCenter) TableName() string {
	return "student_centers"
}
