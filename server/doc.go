// Package server implements the server lifecycle coordinator: the single
// control goroutine that takes a process through the cluster liveness
// protocol.
//
// # Protocol
//
// Construction validates the configuration, computes the server identity
// (host:pid) and eagerly spawns the control goroutine, which then:
//
//  1. Announces the server: one atomic registry transaction adds the
//     identity to the membership set, creates the descriptor (worker count,
//     start time) and writes the queue list.
//  2. Starts the managed units in order: worker pool, schedule poller,
//     dequeued-jobs watcher, server watchdog.
//  3. Heartbeats: overwrites the descriptor's Heartbeat field every period
//     (5s by default) until stopped. The heartbeat is the only liveness
//     proof the rest of the cluster consumes.
//  4. On stop, stops the units in exact reverse order, waiting for each to
//     release its resources. The watchdog and watcher observe the pool, so
//     they retire first. A unit Stop error aborts the remaining stops;
//     fault isolation between stops is not guaranteed.
//  5. Deregisters: one atomic transaction removes the identity from the
//     membership set and deletes the descriptor and queue list.
//
// # Failure containment
//
// Any fault in steps 1-5 is caught at the top of the control goroutine,
// logged, and the goroutine exits without re-raising; a server failure
// never crashes the hosting process. A fault before step 5 leaves the
// descriptor behind with a stale heartbeat — the crash signature the
// watchdog on surviving members is built to reclaim.
//
// [Remove] performs the step-5 cleanup standalone, for external tooling
// reclaiming a server that crashed before deregistering itself.
package server
