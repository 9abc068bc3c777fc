// Package push manages the optional websocket push channel.
//
// # Overview
//
// The gateway can deliver unsolicited server-to-client messages over a
// persistent websocket carrying one JSON document per text frame. The
// Manager owns that connection end to end: it dials, detects loss, and
// reconnects automatically within a bounded attempt budget. Polling remains
// the source of truth; the push channel only reduces latency, so losing it
// degrades the client rather than breaking it.
//
// # Connection lifecycle
//
//	disconnected --Connect--> connecting --dial ok--> connected
//	connected    --read error/close--> disconnected (reconnect)
//	connecting   --dial error-->       disconnected (reconnect)
//
// Each failed dial increments the attempt counter; a successful connection
// resets it. When the counter reaches the bound (default 5) the Manager
// publishes TopicGiveUp and stays down, so the presentation layer can fall
// back to polling-only mode or prompt the user. Only an explicit Connect
// call, which resets the counter, starts a fresh budget. The baseline delay
// between attempts is fixed, with optional exponential doubling capped at
// MaxRetryDelay.
//
// # Message dispatch
//
// Inbound frames are parsed as JSON. A frame with a "type" field is
// published on the bus twice, once on TopicMessage and once on
// MessageTopic(type), so subscribers can listen broadly or narrowly. Frames
// without a type still get generic delivery. Unparseable frames are
// published on TopicError wrapped in ErrMalformedPayload and dropped; they
// never crash the connection.
//
// # Sending
//
// Send writes a JSON frame only while connected and fails with
// ErrNotConnected otherwise. Nothing is queued: the caller hears about the
// failure synchronously and owns the retry decision.
package push
