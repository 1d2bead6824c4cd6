package binder

import (
	"errors"
	"fmt"
)

// Binding errors. Every error returned by a binder wraps one of them.
var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrInvalidJSON          = errors.New("invalid JSON body")
	ErrBodyTooLarge         = errors.New("request body too large")
	ErrInvalidQuery         = errors.New("invalid query parameter")
	ErrInvalidPath          = errors.New("invalid path parameter")
	ErrInvalidTarget        = errors.New("bind target must be a non-nil pointer to struct")
)

// FieldError reports a value that could not be converted to its field type.
// Field is the parameter name as it appears in the request.
type FieldError struct {
	Field string
	Value string
	Kind  error // ErrInvalidQuery or ErrInvalidPath
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v %q: %v", e.Kind, e.Field, e.Err)
}

func (e *FieldError) Unwrap() []error { return []error{e.Kind, e.Err} }

// IsFieldError reports whether err carries a FieldError and returns it.
func IsFieldError(err error) (*FieldError, bool) {
	var fe *FieldError
	ok := errors.As(err, &fe)
	return fe, ok
}
