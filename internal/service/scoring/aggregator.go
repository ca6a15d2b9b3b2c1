package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/yourusername/exam-api/internal/domain/entity"
)

var hundred = decimal.NewFromInt(100)

// Aggregate folds per-question records into the attempt totals and the
// per-subject breakdown. questions must be in test order; records are
// matched by question ID. Subjects appear in first-seen order and every
// subject of the test is listed even if none of its questions was attempted.
func Aggregate(test *entity.Test, questions []*entity.Question, records []entity.AnswerRecord) (entity.Score, []entity.SubjectScore) {
	byQuestion := make(map[uint]entity.AnswerRecord, len(records))
	for _, r := range records {
		byQuestion[r.QuestionID] = r
	}

	var (
		score    entity.Score
		total    = decimal.Zero
		subjects []entity.SubjectScore
		subjIdx  = make(map[string]int)
		subjSums []decimal.Decimal
	)

	for _, q := range questions {
		idx, seen := subjIdx[q.Subject]
		if !seen {
			idx = len(subjects)
			subjIdx[q.Subject] = idx
			subjects = append(subjects, entity.SubjectScore{Subject: q.Subject})
			subjSums = append(subjSums, decimal.Zero)
		}

		rec, ok := byQuestion[q.ID]
		if !ok {
			rec = entity.AnswerRecord{QuestionID: q.ID, Outcome: entity.OutcomeUnattempted}
		}

		delta := decimal.NewFromFloat(rec.MarksObtained)
		total = total.Add(delta)
		subjSums[idx] = subjSums[idx].Add(delta)

		switch rec.Outcome {
		case entity.OutcomeCorrect:
			score.Correct++
			subjects[idx].Correct++
		case entity.OutcomeIncorrect:
			score.Incorrect++
			subjects[idx].Incorrect++
		default:
			score.Unattempted++
			subjects[idx].Unattempted++
		}
	}

	for i := range subjects {
		subjects[i].Marks = subjSums[i].InexactFloat64()
	}

	score.Total = total.InexactFloat64()
	if test.TotalMarks > 0 {
		score.Percentage = total.Mul(hundred).Div(decimal.NewFromFloat(test.TotalMarks)).InexactFloat64()
	}
	return score, subjects
}

// RoundPercentage rounds a stored percentage for display.
func RoundPercentage(p float64) float64 {
	return decimal.NewFromFloat(p).Round(2).InexactFloat64()
}
