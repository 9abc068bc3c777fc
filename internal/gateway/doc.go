// Package gateway provides the typed HTTP client for the ride gateway API.
//
// # Overview
//
// The gateway exposes the ride and notification REST surface behind a single
// base path with JSON bodies and bearer-token authorization. This package
// handles HTTP communication, JSON serialization, and type-safe
// representation of rides and notifications. It performs no synchronization
// of its own; the sync package drives it.
//
// # Endpoints
//
//	POST /api/rides/                          create a ride
//	GET  /api/rides/                          list rides visible to the caller
//	GET  /api/rides/{id}/                     fetch one ride
//	POST /api/rides/{id}/accept/              accept (fulfiller)
//	POST /api/rides/{id}/reject/              reject (fulfiller)
//	POST /api/rides/{id}/complete/            complete (fulfiller)
//	POST /api/rides/{id}/cancel/              cancel with {reason}
//	GET  /api/notifications/                  list with count/unread_count
//	GET  /api/notifications/unread/           unread only
//	GET  /api/notifications/poll/?since=...   incremental poll
//	POST /api/notifications/{id}/mark_as_read/
//	POST /api/notifications/mark_all_as_read/
//
// # Request handling
//
// All requests use context for cancellation, set Accept and User-Agent
// headers, attach a bearer token obtained from the TokenSource collaborator,
// and have a 10-second timeout. Errors are wrapped with context about what
// failed; 4xx/5xx responses become *APIError carrying the status code and
// the server's detail text so callers can show the gateway's own wording
// for a denied transition.
//
// # Authoritative state
//
// Mutating calls return the updated ride record, but callers must not treat
// that as the final word: the sync layer re-reads the rides stream after
// every command so the snapshot only ever reflects confirmed server state.
package gateway
