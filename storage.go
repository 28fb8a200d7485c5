package hangfire

import (
	"context"
	"time"
)

// ServerAnnouncement is the set of facts a server publishes about itself
// when it joins the cluster. All fields are written once, atomically.
type ServerAnnouncement struct {
	ID          ServerID
	WorkerCount int
	Queues      []string
	StartedAt   time.Time
}

// ServerDescriptor is the registry-resident record of one cluster member.
// It is created by AnnounceServer, kept fresh by HeartbeatServer and removed
// by RemoveServer. Only the Heartbeat field changes after announcement.
type ServerDescriptor struct {
	ID          ServerID
	WorkerCount int
	Queues      []string
	StartedAt   time.Time
	Heartbeat   time.Time
}

// Storage is the registry contract every backend implements. The cluster
// membership invariant holds across all methods: an identity is a member of
// the server set if and only if its descriptor exists. Both AnnounceServer
// and RemoveServer maintain this with a single atomic transaction; partial
// registration is never observable.
type Storage interface {
	// AnnounceServer atomically adds the identity to the membership set,
	// creates the descriptor and writes the queue list. Re-announcing an
	// existing identity overwrites its previous record.
	AnnounceServer(ctx context.Context, a *ServerAnnouncement) error

	// HeartbeatServer overwrites the descriptor's Heartbeat field. It
	// returns ErrServerNotFound if the server is no longer registered,
	// which a server treats as fatal: its identity has been reclaimed.
	HeartbeatServer(ctx context.Context, id ServerID, at time.Time) error

	// RemoveServer atomically removes the identity from the membership set
	// and deletes the descriptor and queue list. Removing an identity that
	// is not registered is a no-op, so external reapers can call it
	// without coordination.
	RemoveServer(ctx context.Context, id ServerID) error

	// Servers returns the descriptors of all registered servers.
	Servers(ctx context.Context) ([]*ServerDescriptor, error)
}
