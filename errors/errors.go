package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrNotFound         = fmt.Errorf("record not found")
	ErrSinkBackpressure = fmt.Errorf("connection send buffer full")
	ErrSinkClosed       = fmt.Errorf("connection closed")
	ErrNotRegistered    = fmt.Errorf("connection has not registered an identity")
)

// ValidationError reports a missing or malformed required field.
// Nothing is persisted when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsValidation(err error) bool {
	var ve ValidationError
	return stderrors.As(err, &ve)
}
