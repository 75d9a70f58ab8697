package common

import (
	"errors"
	"fmt"

	cdpruntime "github.com/chromedp/cdproto/runtime"
)

var (
	// ErrChannelClosed is returned when a response is awaited on a
	// closed message channel.
	ErrChannelClosed = errors.New("channel closed")

	// ErrContextNotReady is returned when evaluating in a frame that
	// has no default execution context yet, e.g. right after a
	// navigation and before script injection. Callers may retry once
	// a new context has been created.
	ErrContextNotReady = errors.New("frame has no default execution context yet")

	// ErrInconsistentFrameTree is returned when an incoming event
	// contradicts the local frame tree in a way that cannot be
	// reconciled, e.g. a navigation for an unknown frame that carries
	// a parent frame ID. Continuing past it risks silently diverging
	// from the remote structure.
	ErrInconsistentFrameTree = errors.New("local frame tree is inconsistent with the remote")

	// ErrTargetClosed is returned when a command is sent to a session
	// whose target has already been closed.
	ErrTargetClosed = errors.New("target closed")
)

// EvaluationError is returned when a remote evaluation raised an
// exception. It carries the formatted exception message, never the raw
// exception payload.
type EvaluationError struct {
	Message string
}

// Error satisfies the builtin error interface.
func (e *EvaluationError) Error() string {
	return e.Message
}

// BigIntParseError is returned when a remote bigint value cannot be
// parsed into an int64.
type BigIntParseError struct {
	error
}

// Error satisfies the builtin error interface.
func (e BigIntParseError) Error() string {
	return fmt.Sprintf("parsing bigint value: %s", e.error)
}

// Unwrap returns the wrapped parsing error.
func (e BigIntParseError) Unwrap() error {
	return e.error
}

// UnserializableValueError is returned for remote values that have no
// Go representation.
type UnserializableValueError struct {
	UnserializableValue cdpruntime.UnserializableValue
}

// Error satisfies the builtin error interface.
func (e UnserializableValueError) Error() string {
	return fmt.Sprintf("unserializable value: %q", e.UnserializableValue)
}
