package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteUnavailable covers transport failures, timeouts and calls
	// rejected while the remote is marked unreachable. Callers recover from it
	// by falling back to the local cache.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("document not found")
)

// StatusError is a completed round-trip carrying a non-2xx status other than
// 401 and 404.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote store returned status %d", e.Code)
	}
	return fmt.Sprintf("remote store returned status %d: %s", e.Code, e.Message)
}

// transportError marks failures that never produced a response.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isTransportFailure(err error) bool {
	var te *transportError
	return errors.As(err, &te)
}
