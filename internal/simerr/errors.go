// Package simerr defines the error kinds shared by the survey simulation packages.
// Callers match them with errors.Is; constructors wrap them with context.
package simerr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameters is returned when a builder or constructor receives
	// out-of-range or inconsistent parameters.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrGenerationExhausted is returned when a generator cannot place the
	// requested number of shapes within its attempt ceiling.
	ErrGenerationExhausted = errors.New("generation exhausted")

	// ErrEmptyTeam is returned when a run starts with no surveyors.
	ErrEmptyTeam = errors.New("empty team")

	// ErrEmptyCoverage is returned when a survey is built from a plan with no units.
	ErrEmptyCoverage = errors.New("empty coverage")

	// ErrRunInProgress is returned when a batch is requested while another is executing.
	ErrRunInProgress = errors.New("run in progress")
)

// Invalid wraps ErrInvalidParameters with a formatted message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameters, fmt.Sprintf(format, args...))
}

// Exhausted wraps ErrGenerationExhausted with a formatted message.
func Exhausted(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrGenerationExhausted, fmt.Sprintf(format, args...))
}
