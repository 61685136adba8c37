// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engagelite

import (
	"database/sql"
	"errors"
	"fmt"
)

// Local read/write helpers over the _engage_* tables. Callers hold writeMu
// for mutations; reads go straight to the DB.

// LikeCount returns the cached like count for a note (0 when unknown)
func (c *Client) LikeCount(noteID string) (int64, error) {
	var n int64
	err := c.DB.QueryRow(`SELECT like_count FROM _engage_note_counts WHERE note_id = ?`, noteID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read note count: %w", err)
	}
	return n, nil
}

// Liked reports whether the note is liked in the current view: the server
// mirror for a signed-in user, the provisional local set while anonymous.
func (c *Client) Liked(noteID string) (bool, error) {
	table := "_engage_liked_cache"
	if c.Anonymous() {
		table = "_engage_local_likes"
	}
	var one int
	err := c.DB.QueryRow(`SELECT 1 FROM `+table+` WHERE note_id = ?`, noteID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read like state: %w", err)
	}
	return true, nil
}

// LocalLikes returns the provisional anonymous like set in insertion order
func (c *Client) LocalLikes() ([]string, error) {
	rows, err := c.DB.Query(`SELECT note_id FROM _engage_local_likes ORDER BY liked_at, note_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list local likes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan local like: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CachedAccount returns the last known balance for the signed-in user.
// ok is false when nothing has been cached yet.
func (c *Client) CachedAccount() (earned, spent int64, ok bool, err error) {
	if c.Anonymous() {
		return 0, 0, false, nil
	}
	err = c.DB.QueryRow(`SELECT earned, spent FROM _engage_account_cache WHERE user_id = ?`, c.UserID).
		Scan(&earned, &spent)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to read account cache: %w", err)
	}
	return earned, spent, true, nil
}

func (c *Client) setNoteCount(noteID string, count int64) error {
	_, err := c.DB.Exec(`
		INSERT INTO _engage_note_counts (note_id, like_count) VALUES (?, ?)
		ON CONFLICT(note_id) DO UPDATE SET like_count = excluded.like_count
	`, noteID, count)
	if err != nil {
		return fmt.Errorf("failed to store note count: %w", err)
	}
	return nil
}

// adjustNoteCount applies delta to the cached count, floored at zero
func (c *Client) adjustNoteCount(noteID string, delta int64) (int64, error) {
	current, err := c.LikeCount(noteID)
	if err != nil {
		return 0, err
	}
	next := current + delta
	if next < 0 {
		next = 0
	}
	if err := c.setNoteCount(noteID, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (c *Client) setLikedCache(noteID string, liked bool) error {
	var err error
	if liked {
		_, err = c.DB.Exec(`INSERT OR IGNORE INTO _engage_liked_cache (note_id) VALUES (?)`, noteID)
	} else {
		_, err = c.DB.Exec(`DELETE FROM _engage_liked_cache WHERE note_id = ?`, noteID)
	}
	if err != nil {
		return fmt.Errorf("failed to update liked cache: %w", err)
	}
	return nil
}

func (c *Client) removeLocalLike(noteID string) error {
	_, err := c.DB.Exec(`DELETE FROM _engage_local_likes WHERE note_id = ?`, noteID)
	if err != nil {
		return fmt.Errorf("failed to remove local like: %w", err)
	}
	return nil
}

func (c *Client) setAccountCache(earned, spent int64) error {
	_, err := c.DB.Exec(`
		INSERT INTO _engage_account_cache (user_id, earned, spent) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET earned = excluded.earned, spent = excluded.spent
	`, c.UserID, earned, spent)
	if err != nil {
		return fmt.Errorf("failed to store account cache: %w", err)
	}
	return nil
}
