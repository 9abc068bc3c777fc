// Package config loads the cabsync session configuration.
//
// The config lives in a small TOML file, by default at
// ~/.config/cabsync/config.toml, and every field has a usable default so a
// missing file is not an error:
//
//	gateway_url = "127.0.0.1:8080"
//	push_url = "ws://127.0.0.1:8080/ws"   # empty disables push
//	token = "..."                          # static bearer token
//	role = "requester"                     # or "fulfiller"
//	rides_poll_seconds = 3
//	notifications_poll_seconds = 5
//	reconnect_attempts = 5
//	reconnect_delay_seconds = 3
//	exponential_backoff = false
//	log_level = "info"
//
// The token field is a convenience for local runs against gatewaysim; real
// deployments pass their own gateway.TokenSource instead of a static string.
package config
