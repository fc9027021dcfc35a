package services

import (
	"errors"
	"fmt"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/db"
)

// UserError carries a message that is safe to show to the caller.
type UserError struct {
	Message string
}

func (e UserError) Error() string {
	return e.Message
}

var (
	ErrNotFound           = errors.New("not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrValidationFailed   = errors.New("validation failed")
	ErrPersistence        = errors.New("persistence failure")
	ErrInsufficientPoints = errors.New("insufficient points")
)

func preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrPreconditionFailed, UserError{Message: fmt.Sprintf(format, args...)})
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrValidationFailed, UserError{Message: fmt.Sprintf(format, args...)})
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrNotFound, UserError{Message: fmt.Sprintf(format, args...)})
}

// classify maps storage errors onto the workflow error kinds. Errors that
// already carry a kind pass through untouched.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPreconditionFailed),
		errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrPersistence):
		return err
	case errors.Is(err, db.ErrInsufficientPoints):
		return fmt.Errorf("%w: %w", ErrPreconditionFailed, ErrInsufficientPoints)
	case errors.Is(err, db.ErrInvalidStatusTransition),
		errors.Is(err, db.ErrStaleWrite),
		errors.Is(err, db.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrPreconditionFailed, err)
	case errors.Is(err, db.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
}

// failureReason is the low-cardinality label used in logs and metrics.
func failureReason(err error) string {
	switch {
	case errors.Is(err, authz.ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInsufficientPoints):
		return "insufficient_points"
	case errors.Is(err, ErrPreconditionFailed):
		return "precondition_failed"
	case errors.Is(err, ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "persistence"
	}
}

// UserMessage renders err for the person who triggered it.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrInsufficientPoints) {
		return "Insufficient points for this reward."
	}
	if errors.Is(err, authz.ErrForbidden) {
		return "You are not allowed to perform this action."
	}
	var userErr UserError
	if errors.As(err, &userErr) {
		return userErr.Message
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrPreconditionFailed):
		return "This record was changed by someone else. Refresh and try again."
	case errors.Is(err, ErrValidationFailed):
		return "The submitted data is invalid."
	default:
		return "Something went wrong. Please try again."
	}
}
