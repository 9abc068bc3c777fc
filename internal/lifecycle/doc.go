// Package lifecycle implements the ride state machine.
//
// # Overview
//
// A ride moves through a fixed lifecycle:
//
//	requested → offered → accepted → completed
//
// with cancelled reachable from requested, offered, and accepted. Both
// completed and cancelled are terminal. Two roles act on a ride: the
// requester (the passenger who asked for it) may request and cancel, the
// fulfiller (the driver) may accept, reject, and complete.
//
// # Design
//
// The package is pure logic with no I/O and no mutable state. Callers
// validate a transition with ValidateTransition before issuing the matching
// command to the gateway, and reconcile server payloads against the local
// copy with ApplyServerStatus. Both return plain values and typed errors;
// applying the result is entirely the caller's responsibility.
//
// The transition table mirrors the gateway's server-side policy. The server
// stays authoritative: a locally valid transition can still be denied
// remotely, and a server payload always replaces the local status except
// when it would regress a ride out of a terminal state.
//
// # Errors
//
// ValidateTransition fails with *TransitionError when the action is not
// defined for the current status or the role lacks permission. ParseRole
// fails with *UnknownRoleError for any spelling it does not recognize;
// unknown roles are never silently defaulted.
package lifecycle
