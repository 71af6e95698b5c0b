package ingest

import (
	"errors"
	"fmt"
)

// ValidationError rejects a request before any work is done.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ErrExternalIDConflict is returned when an external id is already
// recorded in the Origin Log for a different profile.
var ErrExternalIDConflict = errors.New("external id already recorded for another profile")

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
