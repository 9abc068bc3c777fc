package sync

import "fmt"

// ValidationError reports bad local input to a command. It never reaches the
// transport; the caller fixes the input and retries.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
