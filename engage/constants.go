// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engage

// Status constants for per-item merge and spend outcomes
const (
	StApplied        = "applied"
	StAlreadyPresent = "already_present"
	StAlreadyApplied = "already_applied"
	StInvalid        = "invalid"
	StFailed         = "failed"
)

// Link probe classifications
const (
	LinkValid   = "valid"
	LinkDeleted = "deleted"
	LinkErrored = "errored"
)

// Invalid reason constants
const (
	ReasonBadPayload          = "bad_payload"
	ReasonNoteNotFound        = "note_not_found"
	ReasonBatchTooLarge       = "batch_too_large"
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonInternalError       = "internal_error"
)
