// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engage

import (
	"errors"
	"fmt"
)

// Sentinel errors for missing ledger records
var (
	ErrNoteNotFound    = errors.New("note not found")
	ErrAccountNotFound = errors.New("account not found")
)

// ValidationError reports malformed input. It is terminal: the request is
// rejected before any mutation and retrying with the same input cannot succeed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// InsufficientBalanceError is a business-rule failure, not a fault. No mutation
// has been performed. Deficit = Required - Available, for user-facing messaging.
type InsufficientBalanceError struct {
	Required  int64
	Available int64
	Deficit   int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required=%d available=%d deficit=%d",
		e.Required, e.Available, e.Deficit)
}

// IsTerminal reports whether err is a business or validation failure that will
// not change on retry. Everything else coming out of the service is assumed
// retryable by callers that queue work.
func IsTerminal(err error) bool {
	var ve *ValidationError
	var ibe *InsufficientBalanceError
	return errors.As(err, &ve) || errors.As(err, &ibe) ||
		errors.Is(err, ErrNoteNotFound) || errors.Is(err, ErrAccountNotFound)
}
