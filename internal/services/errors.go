// Package services defines the business logic for the social graph, feed
// aggregation, stories, engagement, profiles, notifications and direct
// messages. This file centralizes the service-level error values so that
// they can be consistently returned by service methods and checked by
// callers.
//
// Translation into user-facing messages or HTTP status codes is performed
// at the handler layer.
package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/repo"
)

// Taxonomy errors. Every error a service returns wraps exactly one of these
// or one of the validation errors below.
var (
	// ErrNotFound indicates that the requested record does not exist or is
	// not visible to the caller (for example an expired story).
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write collides with a unique constraint
	// that the operation does not absorb (for example a taken username).
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized is returned when the caller is not allowed to act on
	// the record (deleting someone else's comment, reading another user's
	// story viewers).
	ErrUnauthorized = errors.New("not allowed")

	// ErrTransient wraps store failures the caller may retry.
	ErrTransient = errors.New("temporarily unavailable")
)

// Validation errors.
var (
	// ErrInvalidInput is returned for missing or malformed arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTooLong is returned when text exceeds its length limit.
	ErrTooLong = errors.New("text too long")

	// ErrInvalidMedia is returned for unsupported media types.
	ErrInvalidMedia = errors.New("unsupported media type")
)

var sentinels = []error{
	ErrNotFound, ErrConflict, ErrUnauthorized, ErrTransient,
	ErrInvalidInput, ErrTooLong, ErrInvalidMedia,
}

// classify maps a repository error onto the taxonomy. Errors that already
// carry a service sentinel pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return err
		}
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case repo.IsUniqueViolation(err):
		return ErrConflict
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
}

// transient wraps err as ErrTransient with a short description of the step
// that failed.
func transient(step string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransient, step, err)
}
