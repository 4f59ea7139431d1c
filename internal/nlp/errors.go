package nlp

import (
	"errors"
	"fmt"
)

// ParseError reports that the language service answered, but with something
// that does not conform to the expected {intent, params} shape. Distinct from
// ServiceError: the user gets corrective guidance, not a retry notice.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable resolver response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ServiceError reports that the call to the language service itself failed
// (network, timeout, non-success status).
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("language service unavailable: %v", e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsServiceError reports whether err is (or wraps) a ServiceError.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}
