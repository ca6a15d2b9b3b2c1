package errors

import "errors"

// Application-wide error categories. Handlers map them to HTTP statuses.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized is returned for missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller lacks the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation is returned for invalid input.
	ErrValidation = errors.New("validation failed")

	// ErrExpiredToken is returned when an access token has expired.
	ErrExpiredToken = errors.New("token is expired")

	// ErrConflict is returned when a write collides with existing state,
	// e.g. a unique index violation.
	ErrConflict = errors.New("resource state conflict")

	// ErrUnavailable is returned when a dependency (lock, database) is
	// temporarily unusable and the call may be retried.
	ErrUnavailable = errors.New("temporarily unavailable")
)
