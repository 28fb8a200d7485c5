package redis

// Registry key layout. The three server keys are an external contract:
// reaper tooling addresses them by these exact names.

// serversKey is the cluster membership set of server identities.
const serversKey = "servers"

// serverKey returns the descriptor hash for a server: server:{identity}.
// Fields: WorkerCount, StartedAt, Heartbeat.
func serverKey(id string) string { return "server:" + id }

// serverQueuesKey returns the ordered queue list for a server:
// server:{identity}:queues.
func serverQueuesKey(id string) string { return "server:" + id + ":queues" }

// ── Queue keys ──

// queueKey returns the pending list for a queue: queue:{name}.
func queueKey(name string) string { return "queue:" + name }

// dequeuedKey returns the checked-out list for a queue:
// queue:{name}:dequeued.
func dequeuedKey(name string) string { return "queue:" + name + ":dequeued" }

// jobKey returns the claim-metadata hash for a job: job:{id}.
// Fields: Queue, Fetched.
func jobKey(id string) string { return "job:" + id }

// ── Schedule keys ──

// scheduleKey is the sorted set of delayed job IDs scored by run-at time.
const scheduleKey = "schedule"

// recurringSetKey is the set of recurring entry names.
const recurringSetKey = "recurring"

// recurringKey returns the hash for one recurring entry:
// recurring:{name}. Fields: Queue, Cron, NextRun.
func recurringKey(name string) string { return "recurring:" + name }
