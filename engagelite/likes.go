// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engagelite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ToggleOutcome reports the locally visible state after a like toggle
type ToggleOutcome struct {
	NoteID    string
	Liked     bool
	LikeCount int64
	State     MutationState
	Pending   bool // true when the remote call failed transiently and was queued
}

// ToggleLike flips the caller's like on a note.
//
// While anonymous the flip is purely local: the note joins or leaves the
// provisional like set and the cached count moves by one (floored at zero).
//
// For a signed-in user the flip is optimistic. The local view moves first,
// then the server is asked. On success the view is reconciled to the server's
// authoritative count even when it matches the prediction. On a terminal
// rejection the snapshot taken before the flip is restored and the error is
// returned. On a transient failure the optimistic view is kept and the toggle
// is queued for replay; the second transient toggle of the same note cancels
// the queued one instead of stacking.
//
// A toggle for a note whose previous toggle is still awaiting its remote
// outcome returns ErrToggleInFlight without changing anything.
func (c *Client) ToggleLike(ctx context.Context, noteID string) (*ToggleOutcome, error) {
	if noteID == "" {
		return nil, fmt.Errorf("noteID cannot be empty")
	}

	if c.Anonymous() {
		return c.toggleLikeLocal(noteID)
	}

	if !c.acquireToggle(noteID) {
		return nil, ErrToggleInFlight
	}
	defer c.releaseToggle(noteID)

	// Snapshot for rollback
	c.writeMu.Lock()
	wasLiked, err := c.Liked(noteID)
	if err != nil {
		c.writeMu.Unlock()
		return nil, err
	}
	prevCount, err := c.LikeCount(noteID)
	if err != nil {
		c.writeMu.Unlock()
		return nil, err
	}

	// Optimistic flip
	liked := !wasLiked
	delta := int64(1)
	if !liked {
		delta = -1
	}
	if err := c.setLikedCache(noteID, liked); err != nil {
		c.writeMu.Unlock()
		return nil, err
	}
	count, err := c.adjustNoteCount(noteID, delta)
	if err != nil {
		c.writeMu.Unlock()
		return nil, err
	}
	c.writeMu.Unlock()

	resp, err := c.remoteToggleLike(ctx, noteID)
	switch {
	case err == nil:
		// Reconcile to the server's truth, even when it matches
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		if err := c.setLikedCache(noteID, resp.Liked); err != nil {
			return nil, err
		}
		if err := c.setNoteCount(noteID, resp.LikeCount); err != nil {
			return nil, err
		}
		return &ToggleOutcome{
			NoteID:    noteID,
			Liked:     resp.Liked,
			LikeCount: resp.LikeCount,
			State:     StateCommitted,
		}, nil

	case IsTransient(err):
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		queued, qerr := c.enqueueToggle(noteID)
		if qerr != nil {
			return nil, qerr
		}
		state := StatePending
		if !queued {
			// Cancelled the previously queued toggle; locally we are back to
			// the last committed view and nothing awaits replay.
			state = StateCommitted
		}
		c.logger.Warn("like toggle hit transient failure",
			"note_id", noteID, "queued", queued, "error", err)
		return &ToggleOutcome{
			NoteID:    noteID,
			Liked:     liked,
			LikeCount: count,
			State:     state,
			Pending:   queued,
		}, nil

	default:
		// Terminal rejection: restore the snapshot
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		if rerr := c.setLikedCache(noteID, wasLiked); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		if rerr := c.setNoteCount(noteID, prevCount); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return &ToggleOutcome{
			NoteID:    noteID,
			Liked:     wasLiked,
			LikeCount: prevCount,
			State:     StateRolledBack,
		}, err
	}
}

// toggleLikeLocal flips the provisional like set while anonymous
func (c *Client) toggleLikeLocal(noteID string) (*ToggleOutcome, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	tx, err := c.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRow(`SELECT 1 FROM _engage_local_likes WHERE note_id = ?`, noteID).Scan(&one)
	liked := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.Exec(`INSERT INTO _engage_local_likes (note_id) VALUES (?)`, noteID); err != nil {
			return nil, fmt.Errorf("failed to record local like: %w", err)
		}
		liked = true
	case err != nil:
		return nil, fmt.Errorf("failed to read local like: %w", err)
	default:
		if _, err := tx.Exec(`DELETE FROM _engage_local_likes WHERE note_id = ?`, noteID); err != nil {
			return nil, fmt.Errorf("failed to remove local like: %w", err)
		}
	}

	var count int64
	err = tx.QueryRow(`SELECT like_count FROM _engage_note_counts WHERE note_id = ?`, noteID).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read note count: %w", err)
	}
	if liked {
		count++
	} else if count > 0 {
		count--
	}
	if _, err := tx.Exec(`
		INSERT INTO _engage_note_counts (note_id, like_count) VALUES (?, ?)
		ON CONFLICT(note_id) DO UPDATE SET like_count = excluded.like_count
	`, noteID, count); err != nil {
		return nil, fmt.Errorf("failed to store note count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit local toggle: %w", err)
	}

	return &ToggleOutcome{
		NoteID:    noteID,
		Liked:     liked,
		LikeCount: count,
		State:     StateCommitted,
	}, nil
}
