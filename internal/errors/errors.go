package apperrors

import (
	"context"
	"errors"
	"fmt"
)

// Application exit codes define the standard exit statuses for the application.
// These codes are used to signal the outcome of the program execution to the OS.
const (
	ExitSuccess       = 0   // Indicates successful execution.
	ExitErrorGeneric  = 1   // Indicates a generic error.
	ExitErrorTimeout  = 2   // Indicates the operation timed out.
	ExitErrorModel    = 3   // Indicates a fidelity model failed to evaluate.
	ExitErrorConfig   = 4   // Indicates a configuration error.
	ExitErrorCanceled = 130 // Indicates the operation was canceled (e.g., SIGINT).
)

// ConfigError represents a fatal configuration error: an empty ensemble, a
// correction sweep that cannot be formed, mismatched response sizes for a
// discrepancy pair, and similar conditions detected before any evaluation
// is attempted.
type ConfigError struct {
	// Message explains the specific configuration error.
	Message string
}

// Error returns the error message for a ConfigError.
func (e ConfigError) Error() string { return e.Message }

// NewConfigError creates a new ConfigError with a formatted message.
//
// Parameters:
//   - format: A format string (see fmt.Sprintf).
//   - a: Arguments to be formatted into the string.
//
// Returns:
//   - error: A new ConfigError instance containing the formatted message.
func NewConfigError(format string, a ...any) error {
	return ConfigError{Message: fmt.Sprintf(format, a...)}
}

// ModelError reports a failed evaluation of a single fidelity model while
// preserving the original cause.
type ModelError struct {
	// Model is the name of the fidelity model that failed.
	Model string
	// Cause is the underlying error returned by the model.
	Cause error
}

// Error returns a message naming the model and its cause.
func (e ModelError) Error() string {
	return fmt.Sprintf("model %q: %v", e.Model, e.Cause)
}

// Unwrap returns the original wrapped error, allowing for error chain
// inspection (e.g., using errors.Is or errors.As).
func (e ModelError) Unwrap() error { return e.Cause }

// ValidationError represents an input validation failure. It identifies which
// field failed validation and provides a human-readable explanation.
type ValidationError struct {
	// Field is the name of the field that failed validation.
	Field string
	// Message explains the validation failure.
	Message string
}

// Error returns a formatted message describing the validation failure.
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for %q: %s", e.Field, e.Message)
}

// RekeyError is returned when a model reports a completion for a submodel
// evaluation id that no pending map knows about.
type RekeyError struct {
	// Slot is the fidelity slot (0 = surrogate, 1 = truth) being synchronized.
	Slot int
	// SubID is the submodel-local evaluation id that could not be resolved.
	SubID int
}

// Error returns a formatted message describing the unresolved completion.
func (e RekeyError) Error() string {
	return fmt.Sprintf("rekey: no pending evaluation for submodel id %d in slot %d", e.SubID, e.Slot)
}

// WrapError wraps an error with additional context using fmt.Errorf and %w.
// This allows the wrapped error to be unwrapped with errors.Unwrap() and
// checked with errors.Is() and errors.As().
//
// Returns nil if err is nil.
func WrapError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsContextError checks if the error is a context cancellation or deadline exceeded error.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ExitCode maps an error to the process exit code reported by the CLI.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var configErr ConfigError
	var validationErr ValidationError
	var modelErr ModelError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ExitErrorTimeout
	case errors.Is(err, context.Canceled):
		return ExitErrorCanceled
	case errors.As(err, &configErr), errors.As(err, &validationErr):
		return ExitErrorConfig
	case errors.As(err, &modelErr):
		return ExitErrorModel
	}
	return ExitErrorGeneric
}
