// Package events provides the in-process publish/subscribe bus that carries
// change notifications from the sync layer to presentation collaborators and
// connection events from the push channel to whoever cares.
//
// Topics are declared as typed constants by the publishing package, each
// with a documented payload struct, which keeps fan-out to multiple
// subscribers without stringly-typed event names scattered across callers.
// Delivery is synchronous and ordered per topic; every failure the sync
// layer swallows at its boundary is also published here so tests and
// monitoring can observe it.
package events
