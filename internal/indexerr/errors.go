// Package indexerr defines the error taxonomy shared by the container
// parsers, the segment-index builders and the manifest assembler.
//
// Package-specific sentinels wrap one of the categories below, so callers
// can match either the precise failure or its category with errors.Is.
package indexerr

import (
	"errors"
	"fmt"
)

// Error categories.
var (
	ErrMalformedContainer = errors.New("malformed container")
	ErrUnsupportedFeature = errors.New("unsupported feature")
	ErrZeroTimescale      = errors.New("zero timescale")
	ErrBadFloatSize       = errors.New("bad float size")
	ErrNetworkFailure     = errors.New("network failure")
	ErrBadDescriptor      = errors.New("bad descriptor")
	ErrOverflow           = errors.New("read past end of buffer")
)

// Wrap returns a sentinel whose message is msg and which matches category
// under errors.Is.
func Wrap(category error, msg string) error {
	return fmt.Errorf("%s: %w", msg, category)
}

// ParseError indicates a failure to parse a container field. It records the
// container and the field being parsed when the error occurred.
type ParseError struct {
	Container string
	Field     string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse %s: %v", e.Container, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
