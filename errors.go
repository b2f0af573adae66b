package forestz

import (
	"errors"
	"fmt"
)

// Contract violations reported by the Engine.
var (
	// ErrUnknownOrClosedSpan means a notification named an identity that is
	// not currently open.
	ErrUnknownOrClosedSpan = errors.New("unknown or closed span")

	// ErrDuplicateClose means a close arrived for a span that already closed.
	// It also matches ErrUnknownOrClosedSpan.
	ErrDuplicateClose = &duplicateCloseError{}

	// ErrDuplicateSpan means an open arrived for an identity that is already open.
	ErrDuplicateSpan = errors.New("span already open")

	// ErrInvalidID means the reserved NoParent identity was used as a span identity.
	ErrInvalidID = errors.New("invalid span id")
)

// Sink outcomes.
var (
	// ErrQueueOverflow means a tree was dropped because the queue was full.
	ErrQueueOverflow = errors.New("queue overflow")

	// ErrSinkClosed means the sink no longer accepts trees.
	ErrSinkClosed = errors.New("sink closed")

	// ErrNilTree means a nil tree was submitted.
	ErrNilTree = errors.New("nil tree")
)

type duplicateCloseError struct{}

func (*duplicateCloseError) Error() string { return "duplicate close" }

func (*duplicateCloseError) Is(target error) bool {
	return target == ErrUnknownOrClosedSpan
}

// SpanError carries the operation and identity a violation was detected on.
type SpanError struct {
	Err error
	Op  string
	ID  ID
}

func (e *SpanError) Error() string {
	return fmt.Sprintf("forestz: %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *SpanError) Unwrap() error { return e.Err }

func spanErr(op string, id ID, err error) error {
	return &SpanError{Op: op, ID: id, Err: err}
}
