package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrHandlerNotFound is returned when the view invokes a method with no
	// registered handler.
	ErrHandlerNotFound = errors.New("bridge: handler not found")

	// ErrUnknownMethod is returned when the view invokes a name outside the
	// method catalog. It wraps ErrHandlerNotFound.
	ErrUnknownMethod = fmt.Errorf("%w: unknown method", ErrHandlerNotFound)

	// ErrPayloadTooLarge is returned when an encoded event exceeds the
	// session's payload ceiling. The event is not sent.
	ErrPayloadTooLarge = errors.New("bridge: payload too large")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("bridge: session closed")
)
