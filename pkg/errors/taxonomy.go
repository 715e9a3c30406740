package errors

import "errors"

// Taxonomy kinds for the runtime's error model. These are sentinel
// causes wrapped by ContextualError; callers match them with errors.Is.
var (
	// ErrInvalidManifest is a structural manifest error detected at session
	// creation. Local; no session is created.
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrInvalidInput is data that fails a RuntimeData invariant. Terminal
	// for the affected packet, non-fatal for the session by default.
	ErrInvalidInput = errors.New("invalid input")

	// ErrExecutionFailed is a node's process/process_streaming failure.
	// Fatality is configurable per node; default is session-fatal.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrWorkerCrash is a multiprocess worker that terminated unexpectedly.
	// Always fatal for the session; invalidates the cache entry.
	ErrWorkerCrash = errors.New("worker crashed")

	// ErrSessionNotFound names a session ID unknown to the runtime.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed names a session that has already completed teardown.
	ErrSessionClosed = errors.New("session closed")

	// ErrBackPressure is returned when a bounded input channel is full.
	ErrBackPressure = errors.New("back pressure: input channel full")

	// ErrTimeout is returned when an operation exceeds its deadline.
	ErrTimeout = errors.New("operation timed out")
)
