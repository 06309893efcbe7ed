package jellyfin

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated indicates an operation that needs a user session was
// attempted without one.
var ErrNotAuthenticated = errors.New("not authenticated")

// NetworkError wraps a transport-level failure (timeout, refused connection).
// The client never retries; retry policy belongs to the caller.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network failure: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RequestError is a non-2xx response outside the handled cases.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("jellyfin error: status %d: %s", e.Status, e.Body)
}

// AuthExchangeError indicates the server accepted a pairing but the exchange
// response omitted the token or user id. The pairing attempt is unusable and
// a fresh Quick Connect cycle is required.
type AuthExchangeError struct {
	Missing string
}

func (e *AuthExchangeError) Error() string {
	return fmt.Sprintf("quick connect exchange did not return %s", e.Missing)
}
