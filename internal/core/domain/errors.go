package domain

import "errors"

// Domain errors represent business logic failures.
// Adapters wrap their failures with one of these so callers can
// branch with errors.Is regardless of the backend in use.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotConfigured indicates a required service has not been set up.
	ErrNotConfigured = errors.New("not configured")

	// Ingestion Errors.

	// ErrUnsupportedFormat indicates the bytes do not parse as the declared type,
	// or the type itself is unknown.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrEmptyDocument indicates that no text could be extracted.
	ErrEmptyDocument = errors.New("empty document")

	// Infrastructure Errors.

	// ErrIndexUnavailable indicates the vector index backing store is unreachable.
	// It is never retried internally.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrServiceTimeout indicates an external call (embedding, scoring,
	// generation) did not complete before its deadline.
	ErrServiceTimeout = errors.New("service timeout")

	// ErrServiceError indicates a non-timeout failure of an external call.
	ErrServiceError = errors.New("service error")
)

// CouldNotAnswer is the user-facing text returned when no answer can be produced.
const CouldNotAnswer = "Sorry, I could not answer this question."

// NoGroundingFound is shown in place of references when the selection is empty.
const NoGroundingFound = "No grounding found in the indexed documents."
