// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// LikeMergeStatus is the per-item outcome of a like merge. Retryable marks
// transient per-item failures; the ids behind them stay in the client's local
// set for a future run.
type LikeMergeStatus struct {
	NoteID    string `json:"note_id"`
	Status    string `json:"status"` // "applied", "already_present", "invalid", "failed"
	LikeCount int64  `json:"like_count,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Message   string `json:"message,omitempty"`
}

// MergeResult aggregates a like merge run. SyncedCount counts only newly
// created records; already-present ids contribute nothing to it.
type MergeResult struct {
	SyncedCount int               `json:"synced_count"`
	Statuses    []LikeMergeStatus `json:"statuses"`
}

// MergeLikes merges a client's provisional like set into the ledger once
// identity is established. Each id is handled in its own SAVEPOINT: an
// existence check decides between creating the record (and incrementing the
// counter) and reporting it already present, and one item's failure never
// aborts the rest of the batch. Re-running the merge with the same input is
// idempotent and reports SyncedCount 0.
func (s *Service) MergeLikes(ctx context.Context, userID string, noteIDs []string) (*MergeResult, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	userID, err := validateUserID(userID)
	if err != nil {
		return nil, err
	}

	if len(noteIDs) == 0 {
		return &MergeResult{Statuses: []LikeMergeStatus{}}, nil
	}

	// Enforce merge batch size limit. Every item is reported retryable so the
	// client keeps its local set and can resubmit in smaller batches.
	if s.config.MaxMergeBatchSize > 0 && len(noteIDs) > s.config.MaxMergeBatchSize {
		statuses := make([]LikeMergeStatus, len(noteIDs))
		msg := fmt.Sprintf("batch too large: ids=%d limit=%d", len(noteIDs), s.config.MaxMergeBatchSize)
		for i, id := range noteIDs {
			statuses[i] = LikeMergeStatus{NoteID: id, Status: StFailed, Retryable: true, Message: msg}
		}
		return &MergeResult{Statuses: statuses}, nil
	}

	start := s.stageStart()
	result := &MergeResult{Statuses: make([]LikeMergeStatus, 0, len(noteIDs))}
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadWrite}, func(tx pgx.Tx) error {
		for i, rawID := range noteIDs {
			st := s.mergeOne(ctx, tx, userID, rawID, i)
			if st.Status == StApplied {
				result.SyncedCount++
			}
			result.Statuses = append(result.Statuses, st)
		}
		return nil
	})
	s.observeStage(ctx, MetricsOpMerge, MetricsStageTotal, start, len(noteIDs), 1, err != nil)
	if err != nil {
		return nil, fmt.Errorf("failed to process like merge transaction: %w", err)
	}

	s.logger.Info("Like merge processed",
		"user_id", userID, "ids", len(noteIDs), "synced", result.SyncedCount)
	return result, nil
}

// mergeOne applies a single id inside a SAVEPOINT so a per-item failure rolls
// back only that item's work.
func (s *Service) mergeOne(ctx context.Context, tx pgx.Tx, userID, rawID string, idx int) LikeMergeStatus {
	noteID, err := parseNoteID(rawID)
	if err != nil {
		return LikeMergeStatus{NoteID: rawID, Status: StInvalid, Message: "invalid UUID format"}
	}

	spName := fmt.Sprintf("sp_merge_%d", idx)
	if _, err := tx.Exec(ctx, fmt.Sprintf("SAVEPOINT %s", pgx.Identifier{spName}.Sanitize())); err != nil {
		return LikeMergeStatus{NoteID: noteID, Status: StFailed, Retryable: true, Message: err.Error()}
	}

	st, err := s.mergeOneInSavepoint(ctx, tx, userID, noteID)
	if err != nil {
		_, _ = tx.Exec(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", pgx.Identifier{spName}.Sanitize()))
		_, _ = tx.Exec(ctx, fmt.Sprintf("RELEASE SAVEPOINT %s", pgx.Identifier{spName}.Sanitize()))
		if errors.Is(err, ErrNoteNotFound) {
			return LikeMergeStatus{NoteID: noteID, Status: StInvalid, Message: "note not found"}
		}
		s.logger.Warn("Like merge item failed", "user_id", userID, "note_id", noteID, "error", err)
		return LikeMergeStatus{NoteID: noteID, Status: StFailed, Retryable: isRetryablePGTxError(err), Message: err.Error()}
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf("RELEASE SAVEPOINT %s", pgx.Identifier{spName}.Sanitize())); err != nil {
		return LikeMergeStatus{NoteID: noteID, Status: StFailed, Retryable: true, Message: err.Error()}
	}
	return st
}

func (s *Service) mergeOneInSavepoint(ctx context.Context, tx pgx.Tx, userID, noteID string) (LikeMergeStatus, error) {
	var likeCount int64
	err := tx.QueryRow(ctx, `
		SELECT like_count FROM engage.notes WHERE id = $1 FOR UPDATE
	`, noteID).Scan(&likeCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LikeMergeStatus{}, ErrNoteNotFound
		}
		return LikeMergeStatus{}, fmt.Errorf("failed to lock note row: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM engage.likes WHERE user_id = $1 AND note_id = $2
		)`, userID, noteID).Scan(&exists); err != nil {
		return LikeMergeStatus{}, fmt.Errorf("failed to check like existence: %w", err)
	}

	if exists {
		return LikeMergeStatus{NoteID: noteID, Status: StAlreadyPresent, LikeCount: likeCount}, nil
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO engage.likes (user_id, note_id) VALUES ($1, $2)
	`, userID, noteID); err != nil {
		return LikeMergeStatus{}, fmt.Errorf("failed to insert like record: %w", err)
	}

	var newCount int64
	if err := tx.QueryRow(ctx, `
		UPDATE engage.notes SET like_count = like_count + 1
		WHERE id = $1
		RETURNING like_count
	`, noteID).Scan(&newCount); err != nil {
		return LikeMergeStatus{}, fmt.Errorf("failed to increment like count: %w", err)
	}

	return LikeMergeStatus{NoteID: noteID, Status: StApplied, LikeCount: newCount}, nil
}
