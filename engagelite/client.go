// Package engagelite provides a SQLite-backed client for the CampuShare
// engagement API. It keeps an optimistic local mirror of likes, counts and the
// points balance, collects provisional likes while the user is anonymous, and
// queues transiently failed mutations for replay.
// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engagelite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Client manages the local SQLite state and remote engagement calls
type Client struct {
	DB      *sql.DB
	BaseURL string
	Token   func(context.Context) (string, error) // returns JWT, unused while anonymous
	UserID  string                                // empty while anonymous
	HTTP    *http.Client
	config  *Config
	logger  *slog.Logger
	writeMu sync.Mutex // Serialize write operations to prevent SQLite locking issues

	// Per-note in-flight guard: a second toggle for the same note while the
	// first awaits its remote outcome is rejected, not queued.
	inflightMu sync.Mutex
	inflight   map[string]struct{}

	// Pause switch (atomic): lets callers suspend replay activity deterministically
	replayPaused int32
}

// Config holds configuration for the engagement client
type Config struct {
	BackoffMin  time.Duration // 1s
	BackoffMax  time.Duration // 60s
	ReplayLimit int           // max queued operations replayed per pass
}

// DefaultConfig returns the default client configuration
func DefaultConfig() *Config {
	return &Config{
		BackoffMin:  1 * time.Second,
		BackoffMax:  60 * time.Second,
		ReplayLimit: 100,
	}
}

// PauseReplay suspends pending-queue replay (ReplayPending and ReplayLoop respect this flag)
func (c *Client) PauseReplay() { atomic.StoreInt32(&c.replayPaused, 1) }

// ResumeReplay resumes pending-queue replay
func (c *Client) ResumeReplay() { atomic.StoreInt32(&c.replayPaused, 0) }

// NewClient creates a new engagement client. userID may be empty for an
// anonymous session; call SetUser after sign-in.
func NewClient(db *sql.DB, baseURL, userID string, tok func(ctx context.Context) (string, error), config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL cannot be empty")
	}

	if err := initializeDatabase(db); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	client := &Client{
		DB:       db,
		BaseURL:  baseURL,
		Token:    tok,
		UserID:   userID,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		config:   config,
		logger:   slog.Default(),
		inflight: make(map[string]struct{}),
	}
	return client, nil
}

// SetUser records the signed-in user. Call after authentication, before
// SyncLocalLikes. Provisional anonymous state is kept until synced.
func (c *Client) SetUser(userID string) error {
	if userID == "" {
		return fmt.Errorf("userID cannot be empty")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.UserID = userID
	_, err := c.DB.Exec(`UPDATE _engage_client_info SET user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to persist user id: %w", err)
	}
	return nil
}

// Anonymous reports whether the client has no signed-in user
func (c *Client) Anonymous() bool {
	return c.UserID == ""
}

// EnsureSessionID generates and persists a session ID if not already present
func EnsureSessionID(db *sql.DB) (string, error) {
	var sessionID string
	err := db.QueryRow(`SELECT session_id FROM _engage_client_info LIMIT 1`).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		sessionID = uuid.New().String()
		_, err = db.Exec(`
			INSERT INTO _engage_client_info (session_id, user_id)
			VALUES (?, '')
		`, sessionID)
		if err != nil {
			return "", fmt.Errorf("failed to insert client info: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("failed to query client info: %w", err)
	}
	return sessionID, nil
}

// initializeDatabase creates the local metadata tables (private function)
func initializeDatabase(db *sql.DB) error {
	// Enable WAL mode and foreign keys
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	tables := []string{
		// Client/session info (one row per DB file)
		`CREATE TABLE IF NOT EXISTS _engage_client_info (
			session_id   TEXT NOT NULL,           -- locally generated UUIDv4 (persisted)
			user_id      TEXT NOT NULL DEFAULT '' -- empty while anonymous
		)`,

		// Provisional like set collected while anonymous, merged after sign-in
		`CREATE TABLE IF NOT EXISTS _engage_local_likes (
			note_id   TEXT PRIMARY KEY,
			liked_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Mirror of the signed-in user's server-side likes
		`CREATE TABLE IF NOT EXISTS _engage_liked_cache (
			note_id TEXT PRIMARY KEY
		)`,

		// Last known like count per note (optimistically adjusted, reconciled
		// to server values on every successful remote call)
		`CREATE TABLE IF NOT EXISTS _engage_note_counts (
			note_id    TEXT PRIMARY KEY,
			like_count INTEGER NOT NULL DEFAULT 0 CHECK (like_count >= 0)
		)`,

		// Last known points balance for the signed-in user
		`CREATE TABLE IF NOT EXISTS _engage_account_cache (
			user_id TEXT PRIMARY KEY,
			earned  INTEGER NOT NULL DEFAULT 0,
			spent   INTEGER NOT NULL DEFAULT 0
		)`,

		// Pending queue (coalesced, one row per operation key)
		`CREATE TABLE IF NOT EXISTS _engage_pending (
			op_id            TEXT PRIMARY KEY,  -- "toggle_like:<note_id>" or "spend:<reason_ref>"
			kind             TEXT NOT NULL CHECK (kind IN ('toggle_like','spend')),
			payload          TEXT NOT NULL,     -- JSON captured at queue time
			retry_count      INTEGER NOT NULL DEFAULT 0,
			first_attempt_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			queued_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create client table: %w", err)
		}
	}
	return nil
}

// acquireToggle marks noteID in flight; reports false if already in flight
func (c *Client) acquireToggle(noteID string) bool {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	if _, busy := c.inflight[noteID]; busy {
		return false
	}
	c.inflight[noteID] = struct{}{}
	return true
}

func (c *Client) releaseToggle(noteID string) {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	delete(c.inflight, noteID)
}
