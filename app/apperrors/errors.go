// Package apperrors holds the sentinel errors shared across the pipeline.
package apperrors

import "errors"

var (
	// ErrMalformedInput means an upload could not be parsed into a header and at least one row.
	ErrMalformedInput = errors.New("malformed input")
	// ErrQuotaExhausted means the daily row quota left nothing to process.
	ErrQuotaExhausted = errors.New("daily quota exhausted")
	// ErrWorkerSpawnFailed means the OS could not start the analysis worker.
	ErrWorkerSpawnFailed = errors.New("worker spawn failed")
	// ErrSessionNotFound is returned for lookups on unknown sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPersistenceUnavailable wraps failures of the durable session store.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	ErrSessionExists = errors.New("session already exists")
	ErrSessionActive = errors.New("session already has an active worker")
	ErrCanceled      = errors.New("job canceled")
	ErrShuttingDown  = errors.New("server is shutting down")
)
