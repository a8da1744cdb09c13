package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnreachable marks transport-level failures: the server could not be
// contacted at all. Fetch policies use it to pick cache fallbacks, as
// opposed to an HTTP-level rejection.
var ErrUnreachable = errors.New("server unreachable")

// IsUnreachable reports whether err is a transport-level failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// APIError carries an HTTP error status and the server's error payload
// verbatim.
type APIError struct {
	Status  int
	Payload json.RawMessage
}

func (e *APIError) Error() string {
	if len(e.Payload) > 0 {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Payload)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// AsAPIError checks if an error is an APIError and returns it.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	if ae, ok := AsAPIError(err); ok {
		return ae.Status
	}
	return 0
}
