package repository

import "context"

// CenterDirectory resolves which center a student belongs to.
type CenterDirectory interface {
	// CenterOf returns apperrors.ErrNotFound for unknown students.
	CenterOf(ctx context.Context, studentID string) (string, error)
	// CentersOf resolves many students at once; unknown students are absent.
	CentersOf(ctx context.Context, studentIDs []string) (map[string]string, error)
}
