package scoring

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yourusername/exam-api/internal/domain/entity"
)

// Verdict is the outcome of checking one answer against its question.
// Malformed is set when the student sent something that could not be
// interpreted; such answers are still scored as incorrect.
type Verdict struct {
	Outcome   entity.Outcome
	Delta     float64
	Malformed bool
	Detail    string
}

// Validate decides correctness of selected for q and the marks delta.
// Only a nil answer is unattempted and never penalized; an empty string
// was still sent and counts as a malformed incorrect answer.
// It never fails: anything it cannot interpret is an incorrect answer.
func Validate(q *entity.Question, test *entity.Test, selected *string) Verdict {
	if selected == nil {
		return Verdict{Outcome: entity.OutcomeUnattempted}
	}
	answer := strings.TrimSpace(*selected)

	var (
		correct bool
		detail  string
	)
	switch {
	case answer == "":
		detail = "empty answer"
	case q.Type == entity.QuestionTypeMultipleChoice:
		correct, detail = checkMultipleChoice(q, answer)
	case q.Type == entity.QuestionTypeNumerical:
		correct, detail = checkNumerical(q.CorrectAnswer, answer)
	case q.Type == entity.QuestionTypeTrueFalse:
		correct, detail = checkTrueFalse(q.CorrectAnswer, answer)
	default:
		detail = "unsupported question type " + string(q.Type)
	}

	if correct {
		return Verdict{Outcome: entity.OutcomeCorrect, Delta: q.Marks}
	}
	v := Verdict{
		Outcome:   entity.OutcomeIncorrect,
		Malformed: detail != "",
		Detail:    detail,
	}
	if penalty := test.PenaltyFor(q); penalty > 0 {
		v.Delta = -penalty
	}
	return v
}

// checkMultipleChoice matches the selected text against exactly one option
// flagged correct. Questions with no flagged option fall back to CorrectAnswer.
func checkMultipleChoice(q *entity.Question, answer string) (bool, string) {
	known := false
	for _, o := range q.Options {
		if strings.TrimSpace(o.Text) == answer {
			known = true
			break
		}
	}

	correctOptions := q.CorrectOptions()
	if len(correctOptions) == 0 {
		return answer == strings.TrimSpace(q.CorrectAnswer), ""
	}
	if !known {
		return false, "selected text is not one of the options"
	}

	matches := 0
	for _, text := range correctOptions {
		if text == answer {
			matches++
		}
	}
	return matches == 1, ""
}

func checkNumerical(expected, answer string) (bool, string) {
	if len(answer) > maxNumericLength {
		return false, "number too long"
	}
	got, err := decimal.NewFromString(answer)
	if err != nil {
		return false, "not a number: " + answer
	}
	if !inNumericRange(got) {
		return false, "number out of range: " + answer
	}
	key := strings.TrimSpace(expected)
	want, err := decimal.NewFromString(key)
	if err != nil || !inNumericRange(want) {
		// answer key is not a usable number, compare as text
		return answer == key, ""
	}
	return got.Equal(want), ""
}

// Bounds for numerical answers. Comparing decimals rescales both sides to
// the smaller exponent, so exponents must stay small.
const (
	maxNumericLength   = 64
	maxNumericExponent = 64
)

func inNumericRange(d decimal.Decimal) bool {
	exp := d.Exponent()
	return exp >= -maxNumericExponent && exp <= maxNumericExponent
}

func checkTrueFalse(expected, answer string) (bool, string) {
	expected = strings.TrimSpace(expected)
	got, errGot := strconv.ParseBool(strings.ToLower(answer))
	want, errWant := strconv.ParseBool(strings.ToLower(expected))
	if errGot == nil && errWant == nil {
		return got == want, ""
	}
	if errGot != nil && errWant == nil {
		return false, "not a boolean: " + answer
	}
	return strings.EqualFold(answer, expected), ""
}
