// Package bterrors defines the error taxonomy shared by every governor and
// by the manager: sentinels callers can test with errors.Is, plus wrapper
// types that carry enough context for logging.
package bterrors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Wrapper types below Unwrap() to these so callers can use
// errors.Is regardless of which concrete type was returned.
var (
	// ErrNotReady is returned by any accessor or Interact call when a
	// handle cannot be obtained even after an on-demand update.
	ErrNotReady = errors.New("governor: not ready")

	// ErrDisposed is returned when an operation is attempted against a
	// disposed governor or manager.
	ErrDisposed = errors.New("governor: disposed")

	// ErrInvalidState covers misuse such as an out-of-range bitmap index
	// or calling UniqueIndex with more than one bit set.
	ErrInvalidState = errors.New("governor: invalid state")

	// ErrTransport is the root sentinel for any backend failure surfaced
	// through TransportError.
	ErrTransport = errors.New("governor: transport failure")
)

// TransportError wraps a failure returned by a transport backend during an
// Interact call, attaching the URL and operation name for logging.
type TransportError struct {
	URL string
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure on %s during %s: %v", e.URL, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return ErrTransport
}
