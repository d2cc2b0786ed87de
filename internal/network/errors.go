package network

import "errors"

// Domain-specific errors for network operations.
var (
	// ErrJoinFailed is returned when every join attempt failed.
	ErrJoinFailed = errors.New("network: failed to join after retries")

	// ErrNotJoined is returned by a single join attempt that did not
	// reach the connected state.
	ErrNotJoined = errors.New("network: link not connected")
)
