// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engage

import (
	"time"
)

// Note is the ledger record for a shared note. LikeCount is the authoritative
// counter that client-side guesses must converge to.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	FileURL   string    `json:"file_url"`
	LikeCount int64     `json:"like_count"`
	Points    int64     `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}

// Account holds the points balance for a user. Available is always derived;
// it is never stored, so the earned/spent pair cannot drift from it.
type Account struct {
	UserID string `json:"user_id"`
	Earned int64  `json:"earned"`
	Spent  int64  `json:"spent"`
}

// Available returns the spendable balance. The schema check constraint
// (spent <= earned) guarantees this is never negative in committed state.
func (a Account) Available() int64 {
	return a.Earned - a.Spent
}

// LikeRecord is one like by one user on one note. The (user_id, note_id)
// primary key is what makes the toggle existence check authoritative.
type LikeRecord struct {
	UserID  string    `json:"user_id"`
	NoteID  string    `json:"note_id"`
	LikedAt time.Time `json:"liked_at"`
}

// SpendTransaction is one row of the append-only spend audit trail.
// (user_id, reason_ref) is unique; replays of the same spend are recognized
// by that key and never applied twice.
type SpendTransaction struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	ReasonRef string    `json:"reason_ref"`
	CreatedAt time.Time `json:"created_at"`
}
