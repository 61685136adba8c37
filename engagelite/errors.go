// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engagelite

import (
	"errors"
	"fmt"
)

var (
	// ErrToggleInFlight is returned when a toggle for the same note is still
	// awaiting its remote outcome. The request is ignored, not queued.
	ErrToggleInFlight = errors.New("toggle already in flight for this note")

	// ErrSignInRequired is returned by operations that need an established
	// identity (spend, sync) when the client is anonymous.
	ErrSignInRequired = errors.New("operation requires a signed-in user")
)

// TransientError wraps a connectivity/timeout class failure. The operation may
// succeed later; callers keep optimistic state and queue a replay.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// TerminalError is a structured business rejection decoded from the server.
// Retrying with the same input will not change the outcome.
type TerminalError struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsTransient reports whether err is a retryable connectivity-class failure.
// Classification is structural (error types and status codes at the transport
// boundary), never by matching message text.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// MutationState is the lifecycle of one optimistic mutation. The UI-visible
// value is provisional in StatePending, authoritative in StateCommitted, and
// restored to its snapshot in StateRolledBack.
type MutationState string

const (
	StatePending    MutationState = "pending"
	StateCommitted  MutationState = "committed"
	StateRolledBack MutationState = "rolled_back"
)
