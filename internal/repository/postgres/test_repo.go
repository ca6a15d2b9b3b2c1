package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/exam-api/internal/domain/entity"
	apperrors "github.com/yourusername/exam-api/internal/pkg/errors"
)

// TestRepo implements repository.TestRepository
type TestRepo struct {
	db *gorm.DB
}

// NewTestRepo creates a test definition repository
func NewTestRepo(db *gorm.DB) *TestRepo {
	return &TestRepo{db: db}
}

// GetTest returns a test by ID
func (r *TestRepo) GetTest(ctx context.Context, id uint) (*entity.Test, error) {
	var test entity.Test
	err := r.db.WithContext(ctx).First(&test, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &test, nil
}

// GetQuestions loads questions by ID. IDs that do not exist are left out.
func (r *TestRepo) GetQuestions(ctx context.Context, ids []uint) (map[uint]*entity.Question, error) {
	out := make(map[uint]*entity.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var questions []entity.Question
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, err
	}
	for i := range questions {
		out[questions[i].ID] = &questions[i]
	}
	return out, nil
}

// ListEndingBetween returns tests whose end date is in [from, to), oldest first.
func (r *TestRepo) ListEndingBetween(ctx context.Context, from, to time.Time) ([]entity.Test, error) {
	var tests []entity.Test
	err := r.db.WithContext(ctx).
		Where("end_date >= ? AND end_date < ?", from, to).
		Order("end_date ASC").
		Find(&tests).Error
	return tests, err
}
