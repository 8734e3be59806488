package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is malformed (empty query,
	// unsupported schema type, ...). Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrModelUnavailable indicates the embedding or generation service is
	// unreachable or returned malformed output. Retried with backoff at the
	// gateway level before surfacing.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrRateLimited indicates the upstream model service rejected the call
	// for rate reasons. Surfaced per item on batch calls.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrProcessingInProgress indicates a pipeline run is already active for
	// the document. A second run is rejected, never interleaved.
	ErrProcessingInProgress = errors.New("processing already in progress")

	// ErrProcessingFailed indicates a pipeline stage could not complete.
	ErrProcessingFailed = errors.New("processing failed")

	// ErrInvalidProvider indicates an unknown AI provider was specified
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrModelMismatch indicates an attempt to compare vectors produced by
	// different embedding models.
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrJobTerminal indicates a mutation was attempted on a report job that
	// already reached Completed or Failed.
	ErrJobTerminal = errors.New("report job is in a terminal state")

	// ErrJobCancelled indicates the report job was cancelled between
	// section generations.
	ErrJobCancelled = errors.New("report job cancelled")

	// ErrInvalidTransition indicates a report state machine event that is
	// not legal in the current state.
	ErrInvalidTransition = errors.New("invalid state transition")
)
