package mx

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotInitialized is returned when an operation is issued before the
// runtime session exists, or while it is unavailable.
var ErrNotInitialized = errors.New("mx: session not initialized")

// InvalidResponseError wraps a transport failure or an envelope that could
// not be decoded (bad JSON, or no "success" field).
type InvalidResponseError struct {
	Op  string
	Err error
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("mx: invalid response from %s: %v", e.Op, e.Err)
}

func (e *InvalidResponseError) Unwrap() error { return e.Err }

// RemoteError carries a failure reported by the runtime itself. Message is
// the remote diagnostic text, preserved verbatim. RequiresNewCode is set
// only on login failures where retrying the same code is pointless.
type RemoteError struct {
	Op              string
	Message         string
	RequiresNewCode bool
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("mx: %s failed", e.Op)
	}
	return fmt.Sprintf("mx: %s failed: %s", e.Op, e.Message)
}

// MissingFieldError reports a success envelope that lacks a field the
// operation cannot proceed without.
type MissingFieldError struct {
	Op    string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("mx: %s response missing %q", e.Op, e.Field)
}

// moduleUnavailable reports whether err indicates the embedded module could
// not be loaded at all (as opposed to an ordinary operation failure).
func moduleUnavailable(err error) bool {
	var remote *RemoteError
	if !errors.As(err, &remote) {
		return false
	}
	msg := strings.ToLower(remote.Message)
	return strings.Contains(msg, "not available") || strings.Contains(msg, "unavailable")
}
