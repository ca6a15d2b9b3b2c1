package dto

import (
	"time"

	"github.com/yourusername/exam-api/internal/domain/entity"
	"github.com/yourusername/exam-api/internal/service"
	"github.com/yourusername/exam-api/internal/service/scoring"
)

// AnswerRequest is one answer entry sent by the client
type AnswerRequest struct {
	QuestionID     uint    `json:"question_id" binding:"required"`
	SelectedAnswer *string `json:"selected_answer"`
	TimeSpent      int     `json:"time_spent" binding:"min=0"`
}

// SubmitAttemptRequest is the body of a student submission
type SubmitAttemptRequest struct {
	Answers   []AnswerRequest `json:"answers" binding:"dive"`
	StartTime time.Time       `json:"start_time" binding:"required"`
}

// AutoSubmitAttempt is one timed-out attempt forwarded by the attempt store
type AutoSubmitAttempt struct {
	StudentID string          `json:"student_id" binding:"required,max=64"`
	Answers   []AnswerRequest `json:"answers" binding:"dive"`
	StartTime time.Time       `json:"start_time" binding:"required"`
}

// AutoSubmitRequest closes a batch of attempts of one test
type AutoSubmitRequest struct {
	Attempts []AutoSubmitAttempt `json:"attempts" binding:"required,min=1,max=1000,dive"`
}

// ToAttempt converts the request for the finalizer
func (r *SubmitAttemptRequest) ToAttempt(studentID string, testID uint) entity.Attempt {
	return entity.Attempt{
		StudentID: studentID,
		TestID:    testID,
		Answers:   toAttemptAnswers(r.Answers),
		StartTime: r.StartTime,
	}
}

// ToAttempts converts the batch for the finalizer
func (r *AutoSubmitRequest) ToAttempts(testID uint) []entity.Attempt {
	out := make([]entity.Attempt, 0, len(r.Attempts))
	for _, a := range r.Attempts {
		out = append(out, entity.Attempt{
			StudentID: a.StudentID,
			TestID:    testID,
			Answers:   toAttemptAnswers(a.Answers),
			StartTime: a.StartTime,
		})
	}
	return out
}

func toAttemptAnswers(in []AnswerRequest) []entity.AttemptAnswer {
	out := make([]entity.AttemptAnswer, 0, len(in))
	for _, a := range in {
		out = append(out, entity.AttemptAnswer{
			QuestionID:     a.QuestionID,
			SelectedAnswer: a.SelectedAnswer,
			TimeSpent:      a.TimeSpent,
		})
	}
	return out
}

// AnswerResponse is one scored answer
type AnswerResponse struct {
	QuestionID     uint           `json:"question_id"`
	SelectedAnswer *string        `json:"selected_answer"`
	IsCorrect      *bool          `json:"is_correct"`
	Outcome        entity.Outcome `json:"outcome"`
	MarksObtained  float64        `json:"marks_obtained"`
	TimeSpent      int            `json:"time_spent"`
}

// ResultResponse is a result as returned to clients
type ResultResponse struct {
	ID               uint                  `json:"id"`
	StudentID        string                `json:"student_id"`
	TestID           uint                  `json:"test_id"`
	Score            entity.Score          `json:"score"`
	TimeTaken        int                   `json:"time_taken"`
	StartTime        time.Time             `json:"start_time"`
	EndTime          time.Time             `json:"end_time"`
	Status           entity.ResultStatus   `json:"status"`
	Rank             entity.Rank           `json:"rank"`
	SubjectWiseScore []entity.SubjectScore `json:"subject_wise_score"`
	Answers          []AnswerResponse      `json:"answers,omitempty"`
}

// PaginatedResultResponse is one leaderboard page
type PaginatedResultResponse struct {
	Results []*ResultResponse `json:"results"`
	Total   int64             `json:"total"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
}

// RankingResponse reports a finished recomputation
type RankingResponse struct {
	TestID     uint    `json:"test_id"`
	RunID      string  `json:"run_id"`
	Ranked     int     `json:"ranked"`
	Centers    int     `json:"centers"`
	TopScore   float64 `json:"top_score"`
	DurationMS int64   `json:"duration_ms"`
}

// BatchItemResponse is the outcome of one auto-submitted attempt
type BatchItemResponse struct {
	StudentID string              `json:"student_id"`
	Status    entity.ResultStatus `json:"status,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// BatchResponse summarizes an auto-submit batch
type BatchResponse struct {
	Finalized int                 `json:"finalized"`
	Failed    int                 `json:"failed"`
	Items     []BatchItemResponse `json:"items"`
}

// NewResultResponse builds the DTO; answers are included only when withAnswers is set
func NewResultResponse(r *entity.Result, withAnswers bool) *ResultResponse {
	score := r.Score
	score.Percentage = scoring.RoundPercentage(score.Percentage)

	resp := &ResultResponse{
		ID:               r.ID,
		StudentID:        r.StudentID,
		TestID:           r.TestID,
		Score:            score,
		TimeTaken:        r.TimeTaken,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		Status:           r.Status,
		Rank:             r.Rank,
		SubjectWiseScore: r.SubjectWiseScore,
	}
	if resp.SubjectWiseScore == nil {
		resp.SubjectWiseScore = []entity.SubjectScore{}
	}
	if withAnswers {
		resp.Answers = make([]AnswerResponse, 0, len(r.Answers))
		for _, a := range r.Answers {
			resp.Answers = append(resp.Answers, AnswerResponse{
				QuestionID:     a.QuestionID,
				SelectedAnswer: a.SelectedAnswer,
				IsCorrect:      a.IsCorrect(),
				Outcome:        a.Outcome,
				MarksObtained:  a.MarksObtained,
				TimeSpent:      a.TimeSpent,
			})
		}
	}
	return resp
}

// NewPaginatedResultResponse builds a leaderboard page
func NewPaginatedResultResponse(results []entity.Result, total int64, page, perPage int) *PaginatedResultResponse {
	out := make([]*ResultResponse, 0, len(results))
	for i := range results {
		out = append(out, NewResultResponse(&results[i], false))
	}
	return &PaginatedResultResponse{Results: out, Total: total, Page: page, PerPage: perPage}
}

// NewRankingResponse converts a ranking summary
func NewRankingResponse(s *service.RankingSummary) *RankingResponse {
	return &RankingResponse{
		TestID:     s.TestID,
		RunID:      s.RunID,
		Ranked:     s.Ranked,
		Centers:    s.Centers,
		TopScore:   s.TopScore,
		DurationMS: s.Duration.Milliseconds(),
	}
}

// NewBatchResponse converts auto-submit outcomes
func NewBatchResponse(items []service.BatchItem) *BatchResponse {
	resp := &BatchResponse{Items: make([]BatchItemResponse, 0, len(items))}
	for _, it := range items {
		item := BatchItemResponse{StudentID: it.StudentID}
		if it.Err != nil {
			resp.Failed++
			item.Error = it.Err.Error()
		} else if it.Result != nil {
			resp.Finalized++
			item.Status = it.Result.Status
		}
		resp.Items = append(resp.Items, item)
	}
	return resp
}
