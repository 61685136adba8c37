// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ToggleResult is the authoritative outcome of a like toggle. LikeCount is the
// committed counter value; clients reconcile their optimistic guess to it.
type ToggleResult struct {
	NoteID    string `json:"note_id"`
	Liked     bool   `json:"liked"`
	LikeCount int64  `json:"like_count"`
}

// ToggleLike flips the like state for (userID, noteID) and adjusts the note
// counter accordingly.
//
// The transition is decided by an existence check on the like record, never by
// a client-supplied flag, so a retried toggle cannot double-increment: the
// second attempt observes the record created by the first and reverses it (or,
// for an idempotent replay after a lost response, simply reports current state
// after flipping back - callers that need exactly-once semantics go through
// the pending queue which retries the whole toggle).
func (s *Service) ToggleLike(ctx context.Context, userID, noteID string) (*ToggleResult, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	userID, err := validateUserID(userID)
	if err != nil {
		return nil, err
	}
	noteID, err = parseNoteID(noteID)
	if err != nil {
		return nil, err
	}

	start := s.stageStart()
	result := &ToggleResult{NoteID: noteID}
	err = withTxRetry(ctx, s.pool, func(tx pgx.Tx) error {
		// Lock the note row first: serializes same-note toggles and confirms
		// the note exists before any counter math.
		var likeCount int64
		err := tx.QueryRow(ctx, `
			SELECT like_count FROM engage.notes WHERE id = $1 FOR UPDATE
		`, noteID).Scan(&likeCount)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNoteNotFound
			}
			return fmt.Errorf("failed to lock note row: %w", err)
		}

		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM engage.likes WHERE user_id = $1 AND note_id = $2
			)`, userID, noteID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check like existence: %w", err)
		}

		if exists {
			if _, err := tx.Exec(ctx, `
				DELETE FROM engage.likes WHERE user_id = $1 AND note_id = $2
			`, userID, noteID); err != nil {
				return fmt.Errorf("failed to delete like record: %w", err)
			}
			if err := tx.QueryRow(ctx, `
				UPDATE engage.notes SET like_count = GREATEST(like_count - 1, 0)
				WHERE id = $1
				RETURNING like_count
			`, noteID).Scan(&result.LikeCount); err != nil {
				return fmt.Errorf("failed to decrement like count: %w", err)
			}
			result.Liked = false
			return nil
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO engage.likes (user_id, note_id) VALUES ($1, $2)
		`, userID, noteID); err != nil {
			return fmt.Errorf("failed to insert like record: %w", err)
		}
		if err := tx.QueryRow(ctx, `
			UPDATE engage.notes SET like_count = like_count + 1
			WHERE id = $1
			RETURNING like_count
		`, noteID).Scan(&result.LikeCount); err != nil {
			return fmt.Errorf("failed to increment like count: %w", err)
		}
		result.Liked = true
		return nil
	})
	s.observeStage(ctx, MetricsOpToggle, MetricsStageTotal, start, 1, 1, err != nil)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Toggle applied",
		"user_id", userID, "note_id", noteID, "liked", result.Liked, "like_count", result.LikeCount)
	return result, nil
}

// HasLike reports whether a like record exists for (userID, noteID)
func (s *Service) HasLike(ctx context.Context, userID, noteID string) (bool, error) {
	if err := s.checkClosed(); err != nil {
		return false, err
	}
	userID, err := validateUserID(userID)
	if err != nil {
		return false, err
	}
	noteID, err = parseNoteID(noteID)
	if err != nil {
		return false, err
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM engage.likes WHERE user_id = $1 AND note_id = $2
		)`, userID, noteID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check like existence: %w", err)
	}
	return exists, nil
}

// GetLikeCount returns the authoritative counter for a note
func (s *Service) GetLikeCount(ctx context.Context, noteID string) (int64, error) {
	if err := s.checkClosed(); err != nil {
		return 0, err
	}
	noteID, err := parseNoteID(noteID)
	if err != nil {
		return 0, err
	}

	var count int64
	err = s.pool.QueryRow(ctx, `
		SELECT like_count FROM engage.notes WHERE id = $1
	`, noteID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNoteNotFound
		}
		return 0, fmt.Errorf("failed to get like count: %w", err)
	}
	return count, nil
}

// ListUserLikes returns the note ids the user currently has liked, most recent
// first. Used by clients to rebuild their liked mirror after login.
func (s *Service) ListUserLikes(ctx context.Context, userID string) ([]string, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	userID, err := validateUserID(userID)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT note_id::text FROM engage.likes
		WHERE user_id = $1
		ORDER BY liked_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list likes: %w", err)
	}
	defer rows.Close()

	var noteIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan like row: %w", err)
		}
		noteIDs = append(noteIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating likes: %w", err)
	}
	return noteIDs, nil
}
