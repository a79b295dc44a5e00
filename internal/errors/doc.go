// Package apperrors defines the error taxonomy of the evaluation engine:
// fatal configuration errors, failed model evaluations, input validation
// failures and unresolvable completions. Transient conditions (a correction
// whose truth reference has not arrived, a pair whose partner is still
// running) are handled internally and never surface as errors.
//
// Error Wrapping Guidelines:
// This package follows Go's error wrapping conventions using fmt.Errorf with %w.
// Wrapping types implement Unwrap() to support errors.Is() and errors.As().
package apperrors
