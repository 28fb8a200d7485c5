// Package job defines the claim record the worker pool and the
// dequeued-jobs watcher exchange with storage. Execution semantics —
// payloads, state transitions, retries — belong to the host's processor,
// not to this module.
package job

import "time"

// Job is one claimed unit of work. IDs originate outside this module
// (enqueued by producers or minted by the schedule poller for recurring
// fires); the claim only tracks where the job came from and when it was
// checked out.
type Job struct {
	// ID is the externally-assigned job identifier.
	ID string

	// Queue is the queue the job was fetched from.
	Queue string

	// FetchedAt is when this process checked the job out. The watcher
	// uses it to detect claims orphaned by a crashed server.
	FetchedAt time.Time
}
