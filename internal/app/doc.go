// Package app boots a cabsync session: it loads configuration, resolves the
// session role, builds the gateway client, store, coordinator, and the
// configured transports (polling scheduler always, push channel when a
// push_url is set), and runs them until the context is cancelled.
//
// The CLI's only presentation is a set of bus subscriptions that log ride
// and notification changes; anything richer is expected to subscribe to the
// same topics and read the same snapshot.
package app
