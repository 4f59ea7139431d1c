package core

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that a record does not exist or is not owned by the
// caller. Ownership violations deliberately look identical to missing records.
var ErrNotFound = errors.New("record not found")

// ValidationError reports a recognized command missing or carrying an unusable
// parameter. The dispatcher turns it into a corrective reply, never a failure.
type ValidationError struct {
	Field string
	Hint  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Field, e.Hint)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
