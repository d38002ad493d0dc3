package control

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed is delivered to every pending request when the
	// transport reaches EOF before the peer responded.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrCanceled is returned to a caller whose completion channel was
	// dropped without resolution. Only occurs during shutdown.
	ErrCanceled = errors.New("request canceled")

	// ErrNoMoreMessages is returned by Next once the message stream has
	// ended. The stream is finite and non-restartable.
	ErrNoMoreMessages = errors.New("no more messages")

	// ErrInvalidMessage indicates a peer payload that decoded as JSON but
	// not as the shape a typed wrapper expects.
	ErrInvalidMessage = errors.New("invalid message")
)

// RequestError carries the error object from a peer's failure response.
type RequestError struct {
	Code    int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("peer error %d: %s", e.Code, e.Message)
}
