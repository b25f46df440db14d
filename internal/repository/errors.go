package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrDuplicate wraps unique constraint violations.
	ErrDuplicate = errors.New("repository: duplicate record")
	// ErrStaleVersion is returned when a versioned update matched no row.
	ErrStaleVersion = errors.New("repository: stale version")
)

const uniqueViolation = "23505"

// uniqueConstraint returns the violated constraint name when err is a
// Postgres unique violation.
func uniqueConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// DuplicateError carries the constraint that rejected a write.
type DuplicateError struct {
	Constraint string
	Err        error
}

func (e *DuplicateError) Error() string { return "duplicate record (" + e.Constraint + "): " + e.Err.Error() }

// Unwrap lets errors.Is match ErrDuplicate.
func (e *DuplicateError) Unwrap() []error { return []error{ErrDuplicate, e.Err} }

func wrapDuplicate(err error) error {
	if constraint, ok := uniqueConstraint(err); ok {
		return &DuplicateError{Constraint: constraint, Err: err}
	}
	return err
}

func pageBounds(page, size int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return size, (page - 1) * size
}
