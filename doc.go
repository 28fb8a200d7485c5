// Package hangfire provides the lifecycle and liveness protocol for a
// background-job server participating in a distributed processing cluster.
//
// Many independent processes run the same software against a shared registry
// store. Each process embeds a [server.Server] which registers the process,
// advertises the queues it services, proves liveness with periodic
// heartbeats, drives a fixed set of background units, and deregisters on
// shutdown. A process that crashes instead of shutting down leaves its
// descriptor behind with a stale heartbeat; the watchdog unit running on any
// surviving member reclaims it.
//
// # Quick Start
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	storage := redisstore.New(client)
//
//	srv, err := server.New(storage, hostname, 20,
//	    []string{"critical", "default"}, 15*time.Second)
//	if err != nil { ... }
//	defer srv.Close()
//
// # Architecture
//
// The root package defines the registry contract ([Storage]), the
// registry-resident server record ([ServerDescriptor]) and the shared value
// types. Subsystems live in their own packages: server (the lifecycle
// coordinator), worker (the pool), schedule (the delayed-job poller),
// watcher (orphaned-claim recovery), watchdog (stale-server reaping) and
// unit (the start/stop contract they all share). A single backend under
// store/ implements every subsystem interface.
//
// # Registry layout
//
// Registered servers are visible to the whole cluster through three keys per
// server, named so that external tooling can operate on them directly:
//
//	servers                      set of all server identities
//	server:<identity>            hash: WorkerCount, StartedAt, Heartbeat
//	server:<identity>:queues     list of serviced queue names, in order
//
// All three are written in one atomic step at announcement and removed in
// one atomic step at deregistration, so observers never see a partially
// registered server.
package hangfire
