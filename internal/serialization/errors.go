package serialization

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrMissingData    = errors.New("model data missing or truncated")
	ErrInvalidParamID = errors.New("param id out of range")
	ErrMalformedValue = errors.New("malformed param value")
	ErrShortRead      = errors.New("unexpected end of stream")
)

// ParamError reports a ParamDict entry that could not be parsed.
type ParamError struct {
	ID      int    // Param id as written in the stream
	Value   string // Raw value text, empty for binary params
	Details string
}

// Error implements the error interface.
func (e *ParamError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("param %d=%q: %s", e.ID, e.Value, e.Details)
	}
	return fmt.Sprintf("param %d: %s", e.ID, e.Details)
}

// Unwrap lets errors.Is match ErrMalformedValue.
func (e *ParamError) Unwrap() error {
	return ErrMalformedValue
}
