package repositories

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicate       = errors.New("duplicate record")
	ErrConditionFailed = errors.New("conditional write matched no rows")
)

const pgUniqueViolation = "23505"

// IsNotFoundError reports whether err means the requested record is absent.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicateError reports whether err is a unique constraint violation.
func IsDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	// sqlite drivers without error translation
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsConditionFailed reports whether a guarded write lost its precondition.
func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}
