package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/yourusername/exam-api/internal/domain/entity"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"pgx unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"pgx wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"pgx other code", &pgconn.PgError{Code: "23503"}, false},
		{"lib/pq unique violation", &pq.Error{Code: "23505"}, true},
		{"gorm translated", gorm.ErrDuplicatedKey, true},
		{"plain error", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestBuildRankUpdate(t *testing.T) {
	updates := []entity.RankUpdate{
		{StudentID: "s1", Rank: entity.Rank{Overall: 1, CenterWise: 1}},
		{StudentID: "s2", Rank: entity.Rank{Overall: 2, CenterWise: 0}},
	}

	stmt, args := buildRankUpdate(42, updates)

	assert.Equal(t, 2, strings.Count(stmt, "(?, ?::int, ?::int)"))
	assert.Contains(t, stmt, "WHERE r.test_id = ? AND r.student_id = v.student_id")
	assert.Equal(t, []interface{}{"s1", 1, 1, "s2", 2, 0, uint(42)}, args)
	assert.Equal(t, strings.Count(stmt, "?"), len(args))
}
