package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestQuestion_CorrectOptions(t *testing.T) {
	// Arrange
	question := &Question{
		Type: QuestionTypeMultipleChoice,
		Options: []Option{
			{Text: " A ", IsCorrect: true},
			{Text: "B"},
			{Text: "C"},
		},
	}

	// Act & Assert
	assert.Equal(t, []string{"A"}, question.CorrectOptions(), "option text must be trimmed")
}

func TestQuestionType_IsValid(t *testing.T) {
	assert.True(t, QuestionTypeMultipleChoice.IsValid())
	assert.True(t, QuestionTypeNumerical.IsValid())
	assert.True(t, QuestionTypeTrueFalse.IsValid())
	assert.False(t, QuestionType("essay").IsValid())
}

func TestTest_PenaltyFor(t *testing.T) {
	tests := []struct {
		name     string
		test     Test
		question Question
		want     float64
	}{
		{
			name:     "question penalty wins over test default",
			test:     Test{NegativeMarking: NegativeMarking{Enabled: true, Marks: 2}},
			question: Question{NegativeMarks: floatPtr(1)},
			want:     1,
		},
		{
			name:     "explicit zero on question disables test default",
			test:     Test{NegativeMarking: NegativeMarking{Enabled: true, Marks: 2}},
			question: Question{NegativeMarks: floatPtr(0)},
			want:     0,
		},
		{
			name:     "test default when enabled",
			test:     Test{NegativeMarking: NegativeMarking{Enabled: true, Marks: 0.25}},
			question: Question{},
			want:     0.25,
		},
		{
			name:     "test default ignored when disabled",
			test:     Test{NegativeMarking: NegativeMarking{Enabled: false, Marks: 0.25}},
			question: Question{},
			want:     0,
		},
		{
			name:     "negative configured value is treated as magnitude",
			test:     Test{},
			question: Question{NegativeMarks: floatPtr(-1)},
			want:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.test.PenaltyFor(&tt.question))
		})
	}
}

func TestTest_Deadline(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	test := Test{
		DurationMinutes: 60,
		StartDate:       start,
		EndDate:         start.Add(90 * time.Minute),
	}

	// Started on time: duration decides
	assert.Equal(t, start.Add(60*time.Minute), test.Deadline(start))

	// Started late: the test window closes first
	late := start.Add(45 * time.Minute)
	assert.Equal(t, test.EndDate, test.Deadline(late))
}

func TestTest_Window(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	test := Test{StartDate: start, EndDate: start.Add(time.Hour)}

	assert.False(t, test.IsOpenAt(start.Add(-time.Second)))
	assert.True(t, test.IsOpenAt(start))
	assert.True(t, test.IsOpenAt(start.Add(59*time.Minute)))
	assert.False(t, test.IsOpenAt(test.EndDate))

	assert.False(t, test.HasEnded(start))
	assert.True(t, test.HasEnded(test.EndDate))
}

func TestTest_Validate(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	valid := Test{DurationMinutes: 30, StartDate: start, EndDate: start.Add(time.Hour), QuestionIDs: []uint{1}}
	require.NoError(t, valid.Validate())

	inverted := valid
	inverted.EndDate = start
	assert.Error(t, inverted.Validate())

	noQuestions := valid
	noQuestions.QuestionIDs = nil
	assert.Error(t, noQuestions.Validate())
}

func TestTest_IsCenterAllowed(t *testing.T) {
	open := Test{}
	assert.True(t, open.IsCenterAllowed("DEL-01"))

	restricted := Test{AllowedCenters: []string{"DEL-01", "BLR-02"}}
	assert.True(t, restricted.IsCenterAllowed("BLR-02"))
	assert.False(t, restricted.IsCenterAllowed("MUM-03"))
}

func TestAnswerRecord_IsCorrect(t *testing.T) {
	assert.Nil(t, AnswerRecord{Outcome: OutcomeUnattempted}.IsCorrect())

	c := AnswerRecord{Outcome: OutcomeCorrect}.IsCorrect()
	require.NotNil(t, c)
	assert.True(t, *c)

	i := AnswerRecord{Outcome: OutcomeIncorrect}.IsCorrect()
	require.NotNil(t, i)
	assert.False(t, *i)
}
