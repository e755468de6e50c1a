package client

import (
	"errors"
	"fmt"
)

// ErrAuthExpired means the session could not be renewed and has been cleared. Callers are
// expected to send the user back to login.
var ErrAuthExpired = errors.New("authentication expired")

// HTTPError is a non-2xx response other than a recoverable 401.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// NetworkError is a transport-level failure (DNS, refused or reset connection, timeout).
// It is never retried by the client.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}
