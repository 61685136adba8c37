// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engagelite

import (
	"context"
	"fmt"

	"github.com/campushare/go-engage/engage"
)

// SyncReport summarizes one reconciliation of the provisional anonymous like
// set into the signed-in user's account.
type SyncReport struct {
	SyncedCount int      // likes newly recorded on the server
	Invalid     []string // note ids the server rejected terminally (dropped locally)
	Retained    []string // note ids that failed transiently (kept for the next run)
	Cleared     bool     // true when the provisional set is empty afterwards
}

// SyncLocalLikes pushes the provisional like set collected while anonymous to
// the server and folds the results into the signed-in user's mirror.
//
// Per-note outcomes are independent. A like that was applied or was already
// present server-side leaves the provisional set and enters the liked mirror
// with the server's authoritative count. A terminally invalid note id (the
// note no longer exists) is dropped from the provisional set so it never
// retries. A transiently failed note stays provisional for the next run.
//
// The whole batch failing transiently returns the *TransientError and leaves
// the provisional set untouched.
func (c *Client) SyncLocalLikes(ctx context.Context) (*SyncReport, error) {
	if c.Anonymous() {
		return nil, ErrSignInRequired
	}

	ids, err := c.LocalLikes()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &SyncReport{Cleared: true}, nil
	}

	resp, err := c.remoteMergeLikes(ctx, ids)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{SyncedCount: resp.SyncedCount}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for _, st := range resp.Statuses {
		switch st.Status {
		case engage.StApplied, engage.StAlreadyPresent:
			if err := c.removeLocalLike(st.NoteID); err != nil {
				return nil, err
			}
			if err := c.setLikedCache(st.NoteID, true); err != nil {
				return nil, err
			}
			if err := c.setNoteCount(st.NoteID, st.LikeCount); err != nil {
				return nil, err
			}
		case engage.StInvalid:
			if err := c.removeLocalLike(st.NoteID); err != nil {
				return nil, err
			}
			report.Invalid = append(report.Invalid, st.NoteID)
		default:
			// Retryable failure, keep the provisional like
			report.Retained = append(report.Retained, st.NoteID)
			c.logger.Warn("like merge retained after retryable failure",
				"note_id", st.NoteID, "message", st.Message)
		}
	}

	remaining, err := c.LocalLikes()
	if err != nil {
		return nil, fmt.Errorf("failed to recount local likes: %w", err)
	}
	report.Cleared = len(remaining) == 0
	return report, nil
}
