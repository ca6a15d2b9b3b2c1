package repository

import (
	"context"
	"time"

	"github.com/yourusername/exam-api/internal/domain/entity"
)

// TestRepository gives read access to test definitions and their questions.
type TestRepository interface {
	GetTest(ctx context.Context, id uint) (*entity.Test, error)
	// GetQuestions returns the questions found among ids, keyed by ID.
	// Missing IDs are simply absent from the map.
	GetQuestions(ctx context.Context, ids []uint) (map[uint]*entity.Question, error)
	// ListEndingBetween returns tests whose EndDate lies in [from, to).
	ListEndingBetween(ctx context.Context, from, to time.Time) ([]entity.Test, error)
}
