// Package errors provides structured error types for rive-ograf.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the offending property name and value plus a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseUpdate, errors.KindTypeMismatch).
//		Property("headline").
//		Value(42).
//		Detail("expected string").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnknownProperty(errors.PhaseUpdate, "headline")
//	err := errors.NotLoaded(errors.PhaseAction, "graphic")
//
// The control protocol reports failures as status codes rather than errors;
// Status maps an error onto the code the host expects.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
