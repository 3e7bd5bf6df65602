package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrDuplicateAttempt is returned when (assessment, user, attempt number)
	// already exists.
	ErrDuplicateAttempt = errors.New("attempt number already taken")
	// ErrSubmissionNotInProgress is returned when a finalize lost the race
	// against another writer.
	ErrSubmissionNotInProgress = errors.New("submission is not in progress")
	// ErrAssessmentInUse is returned when submissions still reference an
	// assessment being deleted.
	ErrAssessmentInUse = errors.New("assessment is referenced by submissions")
)

// IsNotFound reports whether err signals a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "foreign key") || strings.Contains(msg, "sqlstate 23503")
}
