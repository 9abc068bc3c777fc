// Package gatewaytest provides an in-memory ride gateway for tests and
// local development.
//
// The Gateway implements http.Handler with the same REST surface the real
// gateway exposes, plus the /ws push endpoint, over plain in-memory maps.
// Tokens are "role:user" strings rather than real credentials. Every ride
// mutation creates the matching notification and broadcasts a push frame
// carrying both records, so a client under test sees the same dual delivery
// (poll and push) it sees in production.
//
// Helpers like OfferRide, SetRide, and BroadcastRaw let tests stage
// server-side transitions the REST surface cannot reach, including stale
// and malformed payloads.
package gatewaytest
