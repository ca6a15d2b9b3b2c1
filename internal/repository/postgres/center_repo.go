package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yourusername/exam-api/internal/domain/entity"
	apperrors "github.com/yourusername/exam-api/internal/pkg/errors"
)

// centerLookupBatch keeps IN lists well below the Postgres parameter limit.
const centerLookupBatch = 1000

// CenterRepo implements repository.CenterDirectory on the student_centers table.
type CenterRepo struct {
	db *gorm.DB
}

// NewCenterRepo creates a center directory
func NewCenterRepo(db *gorm.DB) *CenterRepo {
	return &CenterRepo{db: db}
}

// CenterOf returns the center of one student
func (r *CenterRepo) CenterOf(ctx context.Context, studentID string) (string, error) {
	var sc entity.StudentCenter
	err := r.db.WithContext(ctx).Where("student_id = ?", studentID).First(&sc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.ErrNotFound
		}
		return "", err
	}
	return sc.CenterID, nil
}

// CentersOf resolves centers for many students. Unknown students are absent.
func (r *CenterRepo) CentersOf(ctx context.Context, studentIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(studentIDs))
	for start := 0; start < len(studentIDs); start += centerLookupBatch {
		end := start + centerLookupBatch
		if end > len(studentIDs) {
			end = len(studentIDs)
		}

		var rows []entity.StudentCenter
		if err := r.db.WithContext(ctx).
			Where("student_id IN ?", studentIDs[start:end]).
			Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			out[row.StudentID] = row.CenterID
		}
	}
	return out, nil
}
