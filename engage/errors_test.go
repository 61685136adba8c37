// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsTerminal(t *testing.T) {
	require.True(t, IsTerminal(&ValidationError{Field: "amount", Reason: "must be positive"}))
	require.True(t, IsTerminal(&InsufficientBalanceError{Required: 100, Available: 60, Deficit: 40}))
	require.True(t, IsTerminal(ErrNoteNotFound))
	require.True(t, IsTerminal(ErrAccountNotFound))

	// Wrapped errors still classify
	require.True(t, IsTerminal(fmt.Errorf("spend rejected: %w", &InsufficientBalanceError{Required: 10, Available: 0, Deficit: 10})))
	require.True(t, IsTerminal(fmt.Errorf("toggle failed: %w", ErrNoteNotFound)))

	// Infrastructure faults are not terminal
	require.False(t, IsTerminal(fmt.Errorf("connection reset")))
	require.False(t, IsTerminal(context.DeadlineExceeded))
	require.False(t, IsTerminal(nil))
}

func TestInsufficientBalanceError_Message(t *testing.T) {
	err := &InsufficientBalanceError{Required: 100, Available: 60, Deficit: 40}
	require.Equal(t, "insufficient balance: required=100 available=60 deficit=40", err.Error())
}

func TestValidateUserID(t *testing.T) {
	id, err := validateUserID("  u1  ")
	require.NoError(t, err)
	require.Equal(t, "u1", id)

	_, err = validateUserID("   ")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "user_id", ve.Field)
}

func TestParseNoteID(t *testing.T) {
	id, err := parseNoteID(" 018F2D6B-0000-7000-8000-000000000001 ")
	require.NoError(t, err)
	require.Equal(t, "018f2d6b-0000-7000-8000-000000000001", id)

	_, err = parseNoteID("not-a-uuid")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "note_id", ve.Field)
}

func TestValidateSpend(t *testing.T) {
	s := &Service{config: &ServiceConfig{MaxSpendAmount: 500}}

	require.NoError(t, s.validateSpend(100, "ref-1"))

	var ve *ValidationError
	require.ErrorAs(t, s.validateSpend(0, "ref-1"), &ve)
	require.ErrorAs(t, s.validateSpend(-5, "ref-1"), &ve)
	require.ErrorAs(t, s.validateSpend(501, "ref-1"), &ve)
	require.ErrorAs(t, s.validateSpend(100, "  "), &ve)

	// No limit configured means any positive amount passes
	unlimited := &Service{config: &ServiceConfig{}}
	require.NoError(t, unlimited.validateSpend(1_000_000, "ref-2"))
}
