package link

import (
	"errors"
	"fmt"
)

var (
	ErrClosed     = errors.New("link: connection closed")
	ErrNotStarted = errors.New("link: connection not started")

	// ErrStaleChannel is returned to a handler that sends after its session
	// was reset.
	ErrStaleChannel = errors.New("link: channel belongs to a previous session")
)

// TransportError is a read or write failure on the underlying link. It tears
// the connection down instead of resetting the session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("link: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err carries a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
