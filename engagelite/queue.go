// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engagelite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

const (
	opKindToggle = "toggle_like"
	opKindSpend  = "spend"
)

type pendingOp struct {
	OpID    string
	Kind    string
	Payload string
	Retries int
}

type togglePayload struct {
	NoteID string `json:"note_id"`
}

type spendPayload struct {
	Amount    int64  `json:"amount"`
	ReasonRef string `json:"reason_ref"`
}

// enqueueToggle queues a transiently failed like toggle. A toggle is its own
// inverse, so a second transient toggle of the same note cancels the queued
// one instead of stacking. Reports whether a row is queued afterwards.
// Caller holds writeMu.
func (c *Client) enqueueToggle(noteID string) (bool, error) {
	opID := opKindToggle + ":" + noteID
	res, err := c.DB.Exec(`DELETE FROM _engage_pending WHERE op_id = ?`, opID)
	if err != nil {
		return false, fmt.Errorf("failed to coalesce pending toggle: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		// Cancelled the queued toggle, net effect is zero
		return false, nil
	}

	payload, err := json.Marshal(togglePayload{NoteID: noteID})
	if err != nil {
		return false, fmt.Errorf("failed to marshal toggle payload: %w", err)
	}
	_, err = c.DB.Exec(`
		INSERT INTO _engage_pending (op_id, kind, payload) VALUES (?, ?, ?)
	`, opID, opKindToggle, string(payload))
	if err != nil {
		return false, fmt.Errorf("failed to queue toggle: %w", err)
	}
	return true, nil
}

// enqueueSpend queues a transiently failed spend under its idempotency
// reference. Re-queueing the same reasonRef is a no-op. Caller holds writeMu.
func (c *Client) enqueueSpend(amount int64, reasonRef string) error {
	payload, err := json.Marshal(spendPayload{Amount: amount, ReasonRef: reasonRef})
	if err != nil {
		return fmt.Errorf("failed to marshal spend payload: %w", err)
	}
	_, err = c.DB.Exec(`
		INSERT OR IGNORE INTO _engage_pending (op_id, kind, payload) VALUES (?, ?, ?)
	`, opKindSpend+":"+reasonRef, opKindSpend, string(payload))
	if err != nil {
		return fmt.Errorf("failed to queue spend: %w", err)
	}
	return nil
}

// PendingCount returns the number of queued operations awaiting replay
func (c *Client) PendingCount() (int, error) {
	var n int
	if err := c.DB.QueryRow(`SELECT COUNT(*) FROM _engage_pending`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending operations: %w", err)
	}
	return n, nil
}

// ReplayReport summarizes one replay pass over the pending queue
type ReplayReport struct {
	Applied   int // operations the server accepted (or had already applied)
	Discarded int // operations rejected terminally and dropped
	Remaining int // operations still queued after this pass
}

// ReplayPending retries queued operations oldest first, up to ReplayLimit per
// pass. An accepted or already-applied operation leaves the queue and its
// authoritative result is folded into the local caches. A terminal rejection
// drops the operation and unwinds its optimistic local effect. A transient
// failure stops the pass early; the remaining queue waits for the next one.
func (c *Client) ReplayPending(ctx context.Context) (*ReplayReport, error) {
	if atomic.LoadInt32(&c.replayPaused) == 1 {
		n, err := c.PendingCount()
		if err != nil {
			return nil, err
		}
		return &ReplayReport{Remaining: n}, nil
	}

	ops, err := c.listPending()
	if err != nil {
		return nil, err
	}

	report := &ReplayReport{}
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			report.Remaining = len(ops) - i
			return report, err
		}

		rerr := c.replayOne(ctx, op)
		switch {
		case rerr == nil:
			report.Applied++
		case IsTransient(rerr):
			// Still offline (or the server is down); stop and try later
			report.Remaining = len(ops) - i
			if err := c.bumpRetry(op.OpID); err != nil {
				return report, err
			}
			c.logger.Warn("replay pass stopped on transient failure",
				"op_id", op.OpID, "error", rerr)
			return report, nil
		default:
			report.Discarded++
			c.logger.Warn("queued operation discarded after terminal rejection",
				"op_id", op.OpID, "error", rerr)
		}
	}

	n, err := c.PendingCount()
	if err != nil {
		return report, err
	}
	report.Remaining = n
	return report, nil
}

// ReplayLoop drives ReplayPending in the background with exponential backoff.
// The interval doubles from BackoffMin towards BackoffMax while the queue is
// stuck and resets once a pass drains it. Returns when ctx is done.
func (c *Client) ReplayLoop(ctx context.Context) error {
	backoff := c.config.BackoffMin
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		report, err := c.ReplayPending(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("replay pass failed", "error", err)
		}
		if report != nil && report.Remaining == 0 {
			backoff = c.config.BackoffMin
			continue
		}
		backoff *= 2
		if backoff > c.config.BackoffMax {
			backoff = c.config.BackoffMax
		}
	}
}

func (c *Client) listPending() ([]pendingOp, error) {
	rows, err := c.DB.Query(`
		SELECT op_id, kind, payload, retry_count FROM _engage_pending
		ORDER BY queued_at, op_id LIMIT ?
	`, c.config.ReplayLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending operations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ops []pendingOp
	for rows.Next() {
		var op pendingOp
		if err := rows.Scan(&op.OpID, &op.Kind, &op.Payload, &op.Retries); err != nil {
			return nil, fmt.Errorf("failed to scan pending operation: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (c *Client) bumpRetry(opID string) error {
	_, err := c.DB.Exec(`
		UPDATE _engage_pending SET retry_count = retry_count + 1 WHERE op_id = ?
	`, opID)
	if err != nil {
		return fmt.Errorf("failed to bump retry count: %w", err)
	}
	return nil
}

func (c *Client) dequeue(opID string) error {
	_, err := c.DB.Exec(`DELETE FROM _engage_pending WHERE op_id = ?`, opID)
	if err != nil {
		return fmt.Errorf("failed to dequeue operation: %w", err)
	}
	return nil
}

// replayOne retries a single queued operation. Transient errors are returned
// with the row intact; any other outcome removes the row.
func (c *Client) replayOne(ctx context.Context, op pendingOp) error {
	switch op.Kind {
	case opKindToggle:
		var p togglePayload
		if err := json.Unmarshal([]byte(op.Payload), &p); err != nil {
			// Corrupt payload cannot succeed later, drop it
			_ = c.dequeue(op.OpID)
			return fmt.Errorf("corrupt toggle payload: %w", err)
		}
		resp, err := c.remoteToggleLike(ctx, p.NoteID)
		if IsTransient(err) {
			return err
		}
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		if derr := c.dequeue(op.OpID); derr != nil {
			return derr
		}
		if err != nil {
			// The note is gone or the toggle is otherwise unacceptable,
			// unwind the optimistic flip
			if rerr := c.unwindToggle(p.NoteID); rerr != nil {
				return errors.Join(err, rerr)
			}
			return err
		}
		if serr := c.setLikedCache(p.NoteID, resp.Liked); serr != nil {
			return serr
		}
		return c.setNoteCount(p.NoteID, resp.LikeCount)

	case opKindSpend:
		var p spendPayload
		if err := json.Unmarshal([]byte(op.Payload), &p); err != nil {
			_ = c.dequeue(op.OpID)
			return fmt.Errorf("corrupt spend payload: %w", err)
		}
		resp, err := c.remoteSpendPoints(ctx, p.Amount, p.ReasonRef)
		if IsTransient(err) {
			return err
		}
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		if derr := c.dequeue(op.OpID); derr != nil {
			return derr
		}
		if err != nil {
			// Undo the optimistic deduction kept while the spend was queued
			if rerr := c.unwindSpend(p.Amount); rerr != nil {
				return errors.Join(err, rerr)
			}
			return err
		}
		return c.setAccountCache(resp.Earned, resp.Spent)

	default:
		_ = c.dequeue(op.OpID)
		return fmt.Errorf("unknown pending operation kind %q", op.Kind)
	}
}

// unwindToggle reverts the optimistic state of a toggle whose replay was
// rejected terminally. Caller holds writeMu.
func (c *Client) unwindToggle(noteID string) error {
	var one int
	err := c.DB.QueryRow(`SELECT 1 FROM _engage_liked_cache WHERE note_id = ?`, noteID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Optimistic unlike, put the like back
		if err := c.setLikedCache(noteID, true); err != nil {
			return err
		}
		_, err = c.adjustNoteCount(noteID, 1)
		return err
	case err != nil:
		return fmt.Errorf("failed to read liked cache: %w", err)
	default:
		if err := c.setLikedCache(noteID, false); err != nil {
			return err
		}
		_, err = c.adjustNoteCount(noteID, -1)
		return err
	}
}

// unwindSpend reverts the optimistic deduction of a queued spend. Caller
// holds writeMu.
func (c *Client) unwindSpend(amount int64) error {
	var earned, spent int64
	err := c.DB.QueryRow(`
		SELECT earned, spent FROM _engage_account_cache WHERE user_id = ?
	`, c.UserID).Scan(&earned, &spent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read account cache: %w", err)
	}
	spent -= amount
	if spent < 0 {
		spent = 0
	}
	return c.setAccountCache(earned, spent)
}
