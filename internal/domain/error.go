package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid db execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Launch workflow errors
	ErrMissingIdempotencyKey = errors.New("missing campaign launch key")
	ErrMissingConfig         = errors.New("campaign configuration is missing")
	ErrIncompleteConfig      = errors.New("campaign configuration is incomplete")
	ErrPrerequisiteMissing   = errors.New("step prerequisite missing")
	ErrUnknownStep           = errors.New("unknown step")
	ErrNotRetryable          = errors.New("launch is not in a retryable state")
	ErrLocked                = errors.New("launch is being driven elsewhere")
)
