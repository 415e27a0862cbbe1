package repository

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	registration "github.com/goliatone/go-registration"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

// mapConstraintError turns unique violations raised by postgres or sqlite
// into duplicate errors. Other errors pass through.
func mapConstraintError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if string(pqErr.Code) != pqUniqueViolation {
			return err
		}
		return duplicateFor(pqErr.Constraint + " " + pqErr.Detail)
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "duplicate key") {
		return duplicateFor(msg)
	}

	return err
}

func duplicateFor(detail string) error {
	switch {
	case strings.Contains(detail, "email"):
		return registration.ErrDuplicateEmail
	case strings.Contains(detail, "username"):
		return registration.ErrDuplicateUsername
	}
	return goerrors.New("registration record already exists", goerrors.CategoryConflict).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{"detail": detail})
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
