package transfer

import (
	"errors"
	"fmt"

	"etherpush/protocol"
)

// Failure kinds. Every error returned by Session.Run matches exactly one of
// them with errors.Is.
var (
	// ErrReadFailure indicates the connection failed or ended early.
	ErrReadFailure = protocol.ErrReadFailure
	// ErrProtocol indicates the first byte was not a Start marker.
	ErrProtocol = errors.New("protocol error")
	// ErrWriteFailure indicates the response or the payload could not be written.
	ErrWriteFailure = errors.New("write failure")
	// ErrFileOpenFailure indicates the destination file could not be created.
	ErrFileOpenFailure = errors.New("file open failure")
)

// Error records the state a session aborted in.
type Error struct {
	State State
	Kind  error
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil || errors.Is(e.Err, e.Kind) {
		return fmt.Sprintf("%s: %v", e.State, errOrKind(e))
	}
	return fmt.Sprintf("%s: %v: %v", e.State, e.Kind, e.Err)
}

func errOrKind(e *Error) error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
