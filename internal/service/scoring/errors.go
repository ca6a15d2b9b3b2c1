package scoring

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadySubmitted: a Result already exists for the (student, test) pair.
	ErrAlreadySubmitted = errors.New("attempt already submitted")

	// ErrDuplicateAttempt: a concurrent finalize won the race to store the Result.
	ErrDuplicateAttempt = errors.New("duplicate attempt")

	// ErrUnknownQuestion marks an answer that references a question outside the test.
	// The entry is dropped, scoring continues.
	ErrUnknownQuestion = errors.New("unknown question")

	// ErrMalformedAnswer marks an answer that could not be interpreted.
	// It is scored as incorrect.
	ErrMalformedAnswer = errors.New("malformed answer")

	ErrMissingTest     = errors.New("test not found")
	ErrMissingQuestion = errors.New("question not found")

	// ErrRankingFailed wraps infrastructure failures during rank recomputation.
	// Recomputation is idempotent so callers may retry.
	ErrRankingFailed = errors.New("ranking failed")
)

// Anomaly is a non-fatal problem found while finalizing an attempt.
type Anomaly struct {
	Kind       error
	QuestionID uint
	Detail     string
}

func (a Anomaly) Error() string {
	return fmt.Sprintf("question %d: %v: %s", a.QuestionID, a.Kind, a.Detail)
}

func (a Anomaly) Unwrap() error {
	return a.Kind
}

// KindLabel returns a short label suitable for metrics.
func (a Anomaly) KindLabel() string {
	switch {
	case errors.Is(a.Kind, ErrUnknownQuestion):
		return "unknown_question"
	case errors.Is(a.Kind, ErrMalformedAnswer):
		return "malformed_answer"
	default:
		return "duplicate_entry"
	}
}

// errDuplicateEntry marks a second answer entry for the same question.
var errDuplicateEntry = errors.New("duplicate answer entry")
