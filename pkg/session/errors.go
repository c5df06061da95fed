package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for the session package.
var (
	// ErrAlreadyActive indicates Start was called while a session exists.
	ErrAlreadyActive = errors.New("session: already active")

	// ErrStopped indicates the session was stopped while it was starting.
	ErrStopped = errors.New("session: stopped during start")
)

// Kind classifies lifecycle failures.
type Kind int

const (
	// KindPermissionDenied means microphone access was refused.
	KindPermissionDenied Kind = iota + 1

	// KindDevice means an audio device could not be opened.
	KindDevice

	// KindChannelOpen means the live channel could not be opened.
	KindChannelOpen

	// KindTransport means the live channel failed after opening.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindDevice:
		return "device"
	case KindChannelOpen:
		return "channel_open"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is a lifecycle failure reported through Callbacks.OnError. The
// session is always torn down after one is reported.
type Error struct {
	Kind  Kind
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Kind, e.Cause)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsPermissionDenied reports whether err is a refused microphone.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == KindPermissionDenied
}

// IsChannelOpen reports whether err is a failure to open the live channel.
func IsChannelOpen(err error) bool {
	return KindOf(err) == KindChannelOpen
}

// IsTransport reports whether err is a mid-session channel failure.
func IsTransport(err error) bool {
	return KindOf(err) == KindTransport
}
