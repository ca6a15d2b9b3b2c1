package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yourusername/exam-api/internal/domain/entity"
	"github.com/yourusername/exam-api/internal/domain/repository"
	apperrors "github.com/yourusername/exam-api/internal/pkg/errors"
)

// rankUpdateBatch is the number of rows per UPDATE ... FROM (VALUES ...) statement.
const rankUpdateBatch = 500

// leaderboardOrder puts unranked results (rank 0) after ranked ones.
const leaderboardOrder = "CASE WHEN results.rank_overall = 0 THEN 1 ELSE 0 END, results.rank_overall ASC, results.score_total DESC, results.student_id ASC"

// ResultRepo implements repository.ResultRepository
type ResultRepo struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewResultRepo creates a result repository
func NewResultRepo(db *gorm.DB, logger *zap.Logger) *ResultRepo {
	return &ResultRepo{db: db, logger: logger.Named("ResultRepo")}
}

// ExistsResult reports whether the student already has a result for the test
func (r *ResultRepo) ExistsResult(ctx context.Context, studentID string, testID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Result{}).
		Where("student_id = ? AND test_id = ?", studentID, testID).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

// SaveResult inserts a finalized result. The (student_id, test_id) unique
// index turns a concurrent second insert into apperrors.ErrConflict.
func (r *ResultRepo) SaveResult(ctx context.Context, result *entity.Result) error {
	err := r.db.WithContext(ctx).Create(result).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: result for student %s, test %d", apperrors.ErrConflict, result.StudentID, result.TestID)
	}
	return err
}

// ListResults returns every result of a test in insertion order
func (r *ResultRepo) ListResults(ctx context.Context, testID uint) ([]entity.Result, error) {
	var results []entity.Result
	err := r.db.WithContext(ctx).
		Where("test_id = ?", testID).
		Order("id ASC").
		Find(&results).Error
	return results, err
}

// UpdateRanks writes the rank columns of a whole test in one transaction.
// Other columns are never touched.
func (r *ResultRepo) UpdateRanks(ctx context.Context, testID uint, updates []entity.RankUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(updates); start += rankUpdateBatch {
			end := start + rankUpdateBatch
			if end > len(updates) {
				end = len(updates)
			}
			stmt, args := buildRankUpdate(testID, updates[start:end])
			res := tx.Exec(stmt, args...)
			if res.Error != nil {
				return fmt.Errorf("update ranks for test %d: %w", testID, res.Error)
			}
			if res.RowsAffected != int64(end-start) {
				r.logger.Warn("rank update touched unexpected row count",
					zap.Uint("test_id", testID),
					zap.Int("expected", end-start),
					zap.Int64("affected", res.RowsAffected))
			}
		}
		return nil
	})
}

// buildRankUpdate renders one batched UPDATE joined against a VALUES list.
func buildRankUpdate(testID uint, updates []entity.RankUpdate) (string, []interface{}) {
	var sb strings.Builder
	args := make([]interface{}, 0, len(updates)*3+1)

	sb.WriteString(`UPDATE results AS r
SET rank_overall = v.overall, rank_center_wise = v.center_wise, updated_at = NOW()
FROM (VALUES `)
	for i, u := range updates {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?::int, ?::int)")
		args = append(args, u.StudentID, u.Rank.Overall, u.Rank.CenterWise)
	}
	sb.WriteString(`) AS v(student_id, overall, center_wise)
WHERE r.test_id = ? AND r.student_id = v.student_id`)
	args = append(args, testID)

	return sb.String(), args
}

// GetStudentResult returns the result of one student for a test
func (r *ResultRepo) GetStudentResult(ctx context.Context, studentID string, testID uint) (*entity.Result, error) {
	var result entity.Result
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND test_id = ?", studentID, testID).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

// GetTestResults returns one leaderboard page and the total number of matching results.
func (r *ResultRepo) GetTestResults(ctx context.Context, testID uint, filter repository.ResultFilter, limit, offset int) ([]entity.Result, int64, error) {
	var (
		results []entity.Result
		total   int64
	)

	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("results.test_id = ?", testID)
		if filter.CenterID != "" {
			db = db.Joins("JOIN student_centers sc ON sc.student_id = results.student_id").
				Where("sc.center_id = ?", filter.CenterID)
		}
		return db
	}

	// count and page read the same snapshot
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.Result{}).Scopes(scope).Count(&total).Error; err != nil {
			return err
		}
		return tx.Model(&entity.Result{}).Scopes(scope).
			Select("results.*").
			Order(leaderboardOrder).
			Limit(limit).
			Offset(offset).
			Find(&results).Error
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}
