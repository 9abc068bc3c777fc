package gateway

import "fmt"

// APIError reports an HTTP response the gateway answered with a 4xx or 5xx
// status. Detail carries the server's {"detail": ...} text when present so
// transition denials surface the gateway's own wording.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("gateway returned status %d", e.StatusCode)
}

// Denied reports whether the gateway rejected the request as not permitted
// for the caller's role or the ride's current state.
func (e *APIError) Denied() bool {
	return e.StatusCode == 400 || e.StatusCode == 403
}
