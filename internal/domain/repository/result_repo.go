package repository

import (
	"context"

	"github.com/yourusername/exam-api/internal/domain/entity"
)

// ResultFilter narrows a leaderboard query.
type ResultFilter struct {
	// CenterID limits results to students of one center. Empty means all.
	CenterID string
}

// ResultRepository stores finalized results.
type ResultRepository interface {
	ExistsResult(ctx context.Context, studentID string, testID uint) (bool, error)
	// SaveResult inserts a new result. A unique (student, test) violation
	// is reported as apperrors.ErrConflict.
	SaveResult(ctx context.Context, result *entity.Result) error
	ListResults(ctx context.Context, testID uint) ([]entity.Result, error)
	// UpdateRanks writes rank fields only, atomically for the whole test.
	UpdateRanks(ctx context.Context, testID uint, updates []entity.RankUpdate) error
	GetStudentResult(ctx context.Context, studentID string, testID uint) (*entity.Result, error)
	GetTestResults(ctx context.Context, testID uint, filter ResultFilter, limit, offset int) ([]entity.Result, int64, error)
}
