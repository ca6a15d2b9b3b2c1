package scoring

import (
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/exam-api/internal/domain/entity"
)

// Mode tells the finalizer who closed the attempt.
type Mode int

const (
	// ModeStudentSubmit: the student pressed submit.
	ModeStudentSubmit Mode = iota
	// ModeAutoSubmit: the attempt timed out and the system closes it.
	ModeAutoSubmit
)

func (m Mode) String() string {
	if m == ModeAutoSubmit {
		return "auto_submit"
	}
	return "student_submit"
}

var (
	// ErrNotExpired is returned when auto-submit is requested before the
	// attempt deadline.
	ErrNotExpired = errors.New("attempt has not reached its deadline")

	// ErrOutsideWindow is returned for an attempt that starts before the
	// test opens or after the finalizer clock.
	ErrOutsideWindow = errors.New("attempt outside the test window")
)

// Finalize scores one attempt and assembles its Result. Questions are
// processed in the test's order; the order of attempt.Answers is ignored.
// Rank is left at zero. Non-fatal problems are returned as anomalies.
func Finalize(attempt entity.Attempt, test *entity.Test, questionsByID map[uint]*entity.Question, mode Mode, now time.Time) (*entity.Result, []Anomaly, error) {
	if test == nil {
		return nil, nil, ErrMissingTest
	}

	questions := make([]*entity.Question, 0, len(test.QuestionIDs))
	inTest := make(map[uint]struct{}, len(test.QuestionIDs))
	for _, id := range test.QuestionIDs {
		q, ok := questionsByID[id]
		if !ok || q == nil {
			return nil, nil, fmt.Errorf("%w: id %d", ErrMissingQuestion, id)
		}
		questions = append(questions, q)
		inTest[id] = struct{}{}
	}

	var anomalies []Anomaly
	entries := make(map[uint]entity.AttemptAnswer, len(attempt.Answers))
	for _, a := range attempt.Answers {
		if _, ok := inTest[a.QuestionID]; !ok {
			anomalies = append(anomalies, Anomaly{Kind: ErrUnknownQuestion, QuestionID: a.QuestionID, Detail: "answer dropped"})
			continue
		}
		if _, dup := entries[a.QuestionID]; dup {
			anomalies = append(anomalies, Anomaly{Kind: errDuplicateEntry, QuestionID: a.QuestionID, Detail: "later entry ignored"})
			continue
		}
		entries[a.QuestionID] = a
	}

	if attempt.StartTime.Before(test.StartDate) || attempt.StartTime.After(now) {
		return nil, nil, fmt.Errorf("%w: start %s", ErrOutsideWindow, attempt.StartTime.Format(time.RFC3339))
	}

	deadline := test.Deadline(attempt.StartTime)
	var (
		status  entity.ResultStatus
		endTime time.Time
	)
	switch mode {
	case ModeAutoSubmit:
		if now.Before(deadline) {
			return nil, nil, fmt.Errorf("%w: deadline %s", ErrNotExpired, deadline.Format(time.RFC3339))
		}
		status, endTime = entity.ResultStatusAutoSubmitted, deadline
	default:
		// a caller supplied submit time may only move the end earlier,
		// never before the start
		submitted := now
		if attempt.SubmitTime != nil && attempt.SubmitTime.Before(now) {
			submitted = *attempt.SubmitTime
		}
		if submitted.Before(attempt.StartTime) {
			submitted = attempt.StartTime
		}
		switch {
		case now.After(deadline):
			// late submit is closed at the deadline
			status, endTime = entity.ResultStatusAutoSubmitted, deadline
		case len(entries) < len(questions):
			status, endTime = entity.ResultStatusIncomplete, submitted
		default:
			status, endTime = entity.ResultStatusCompleted, submitted
		}
	}

	records := make([]entity.AnswerRecord, 0, len(questions))
	for _, q := range questions {
		entry, ok := entries[q.ID]
		rec := entity.AnswerRecord{QuestionID: q.ID, Outcome: entity.OutcomeUnattempted}
		if ok {
			v := Validate(q, test, entry.SelectedAnswer)
			rec.SelectedAnswer = entry.SelectedAnswer
			rec.Outcome = v.Outcome
			rec.MarksObtained = v.Delta
			rec.TimeSpent = entry.TimeSpent
			if v.Malformed {
				anomalies = append(anomalies, Anomaly{Kind: ErrMalformedAnswer, QuestionID: q.ID, Detail: v.Detail})
			}
		}
		records = append(records, rec)
	}

	score, subjects := Aggregate(test, questions, records)

	return &entity.Result{
		StudentID:        attempt.StudentID,
		TestID:           test.ID,
		Answers:          records,
		Score:            score,
		TimeTaken:        minutesTaken(attempt.StartTime, endTime, test.DurationMinutes),
		StartTime:        attempt.StartTime,
		EndTime:          endTime,
		Status:           status,
		SubjectWiseScore: subjects,
	}, anomalies, nil
}

// minutesTaken returns whole minutes between start and end clamped to [0, limit].
func minutesTaken(start, end time.Time, limit int) int {
	m := int(end.Sub(start) / time.Minute)
	if m < 0 {
		return 0
	}
	if m > limit {
		return limit
	}
	return m
}
