// Package sync keeps the local view of rides and notifications consistent
// with the gateway despite polling latency, duplicate delivery, and
// connection loss.
//
// # Overview
//
// The package composes the rest of the core:
//
//   - Store owns the Snapshot, the single source of truth handed to
//     presentation collaborators. Every mutation goes through its methods
//     under a lock.
//   - Coordinator issues commands to the gateway, ingests raw server
//     payloads from polling and push, runs them through the lifecycle and
//     dedup rules, and publishes change events on the bus.
//   - Scheduler ticks the two poll cycles at independent cadences (rides
//     every 3s, notifications every 5s by default).
//   - Source abstracts the two transports; Scheduler and PushSource both
//     implement it so a deployment can run polling only, push only, or both.
//
// # Ordering model
//
// Within one stream the coordinator holds an in-flight gate: a tick or
// out-of-band refresh that lands while a cycle is running is skipped, never
// queued, so at most one request per stream is ever outstanding and
// responses apply in issue order. Across streams, and between polling and
// push delivery, no ordering is guaranteed; ingestion is commutative and
// idempotent instead — the lifecycle regression guard keeps a stale ride
// payload from undoing a terminal state, and the notification merge yields
// the same log whatever the interleaving. A whole-response staleness check
// (last applied wins, by issue time) covers the remaining race between an
// out-of-band refresh and a scheduled cycle.
//
// # Commands
//
// Command methods validate the transition locally when the ride is known,
// forward to the gateway, and kick an immediate rides refresh so the UI
// reflects the change without waiting for the next tick. There is no
// optimistic ride mutation: a command failure leaves the snapshot untouched
// and correctness rides on the next confirmed read. The one optimistic write
// is the notification read flag, which is deliberately not rolled back on
// server failure.
//
// # Failure visibility
//
// Poll and push failures are swallowed at this boundary so a bad cycle never
// halts synchronization, but every swallowed error is logged and published
// on TopicSyncError.
package sync
