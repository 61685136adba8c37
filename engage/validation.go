// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engage

import (
	"strings"

	"github.com/google/uuid"
)

// validateUserID normalizes and checks the actor id. Anonymous actors never
// reach the ledger; every server operation requires an established identity.
func validateUserID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", &ValidationError{Field: "user_id", Reason: "required"}
	}
	return userID, nil
}

// parseNoteID validates the UUID format of a note id
func parseNoteID(noteID string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(noteID))
	if err != nil {
		return "", &ValidationError{Field: "note_id", Reason: "invalid UUID format"}
	}
	return parsed.String(), nil
}

// validateSpend checks amount and reason reference before any mutation
func (s *Service) validateSpend(amount int64, reasonRef string) error {
	if amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if s.config.MaxSpendAmount > 0 && amount > s.config.MaxSpendAmount {
		return &ValidationError{Field: "amount", Reason: "exceeds per-request limit"}
	}
	if strings.TrimSpace(reasonRef) == "" {
		return &ValidationError{Field: "reason_ref", Reason: "required"}
	}
	return nil
}
