// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pipeline

import (
	"errors"
	"fmt"
)

// ErrStopMessageProcessing is the benign, per-message signal that
// propagation should halt for this hop: the message was consumed
// (buffered for later, or dropped) by the stage that returned it. It must
// never escape the Pipeline (spec.md §7).
var ErrStopMessageProcessing = errors.New("pipeline: stop message processing")

// SessionError is an unrecoverable protocol violation. The Pipeline
// responds by emitting a Logout if possible, stopping every stage, and
// surfacing the error to its caller (spec.md §7).
type SessionError struct {
	Reason string
	Cause  error
}

// NewSessionError builds a SessionError, optionally wrapping cause.
func NewSessionError(reason string, cause error) *SessionError {
	return &SessionError{Reason: reason, Cause: cause}
}

func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("session error: %s", e.Reason)
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}

// TransportError signals an underlying byte-stream failure. The Client
// Session stage responds with reconnection and backoff, resuming the
// session if permitted (spec.md §7).
type TransportError struct {
	Cause error
}

// NewTransportError wraps cause as a TransportError.
func NewTransportError(cause error) *TransportError {
	return &TransportError{Cause: cause}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewStoreError wraps a durability failure as a SessionError: a message
// that cannot be persisted must not be acknowledged (spec.md §7).
func NewStoreError(cause error) *SessionError {
	return NewSessionError("message store durability failure", cause)
}
