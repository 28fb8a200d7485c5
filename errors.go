package hangfire

import "errors"

var (
	// Configuration errors, returned synchronously at construction.
	ErrNoStorage            = errors.New("hangfire: no storage configured")
	ErrNoQueues             = errors.New("hangfire: at least one queue is required")
	ErrNegativePollInterval = errors.New("hangfire: poll interval must not be negative")
	ErrInvalidWorkerCount   = errors.New("hangfire: worker count must be positive")
	ErrIncompleteStorage    = errors.New("hangfire: storage does not implement the collaborator interfaces")

	// Registry errors.
	ErrServerNotFound = errors.New("hangfire: server not found")
)
