package service

import (
	"errors"
	"fmt"
)

// Error kinds returned by the assessment engine. Handlers match them with
// errors.Is; the more specific errors below wrap one of these.
var (
	ErrValidation                = errors.New("validation failed")
	ErrNotFound                  = errors.New("not found")
	ErrPermission                = errors.New("permission denied")
	ErrAttemptLimitExceeded      = errors.New("attempt limit exceeded")
	ErrAlreadyFinalized          = errors.New("submission already finalized")
	ErrConflict                  = errors.New("conflict")
	ErrConcurrencyRetryExhausted = errors.New("concurrency retry exhausted")
)

var (
	// ErrAssessmentNotFound indicates the requested assessment does not exist.
	ErrAssessmentNotFound = fmt.Errorf("assessment %w", ErrNotFound)
	// ErrSubmissionNotFound indicates the submission does not exist or is not visible to the caller.
	ErrSubmissionNotFound = fmt.Errorf("submission %w", ErrNotFound)
	// ErrAssessmentHasSubmissions blocks deleting an assessment that learners have attempted.
	ErrAssessmentHasSubmissions = fmt.Errorf("%w: assessment has submissions", ErrConflict)
	// ErrAssessmentNotPublished blocks learners from starting a draft.
	ErrAssessmentNotPublished = fmt.Errorf("%w: assessment is not published", ErrPermission)
	// ErrNotCourseManager indicates the actor is neither course owner nor admin.
	ErrNotCourseManager = fmt.Errorf("%w: course owner or admin required", ErrPermission)
	// ErrNotEnrolled indicates the actor is not enrolled in the course.
	ErrNotEnrolled = fmt.Errorf("%w: not enrolled in course", ErrPermission)
)

func validationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func wrapValidation(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}
