// Package apperr defines the sentinel errors shared across pipeline stages.
package apperr

import "errors"

var (
	// ErrParse marks malformed trace input. Fatal to conversion.
	ErrParse = errors.New("trace parse error")

	// ErrSchema marks a configuration file that cannot be decoded into the
	// expected shape. Fatal to the stage that loaded it.
	ErrSchema = errors.New("configuration schema error")

	// ErrValidation marks a configuration that decoded fine but violates a
	// model invariant. Fatal to the stage that loaded it.
	ErrValidation = errors.New("configuration validation error")

	// ErrDestinationNotEmpty marks a packaging destination that already holds
	// files. The builder never merges into an existing tree.
	ErrDestinationNotEmpty = errors.New("destination not empty")

	// ErrNotFound marks a missing file or record.
	ErrNotFound = errors.New("not found")
)
