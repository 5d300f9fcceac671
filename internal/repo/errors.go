package repo

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is gorm's not-found error, so callers can test for
	// either name.
	ErrNotFound = gorm.ErrRecordNotFound

	// ErrDuplicate reports a write that collided with a unique index.
	ErrDuplicate = errors.New("repo: duplicate row")
)

// driver messages for unique index violations (sqlite, postgres)
var uniqueMarkers = []string{
	"unique constraint",
	"constraint failed: unique",
	"duplicate key",
}

// IsUniqueViolation reports whether err was caused by a unique index.
// glebarez/sqlite surfaces these as plain text unless TranslateError is on,
// so the message is matched too.
func IsUniqueViolation(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrDuplicate), errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range uniqueMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
