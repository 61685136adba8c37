// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// initializeSchemaInTx creates the ledger tables within an existing transaction
func (s *Service) initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	migrations := []string{
		// Dedicated ledger schema
		/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS engage`,

		// 1) Notes: counter + externally hosted file reference.
		// like_count is floored at 0 by the check; the toggle never commits below it.
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS engage.notes (
			id         UUID        PRIMARY KEY,
			title      TEXT        NOT NULL DEFAULT '',
			file_url   TEXT        NOT NULL DEFAULT '',
			like_count BIGINT      NOT NULL DEFAULT 0 CHECK (like_count >= 0),
			points     BIGINT      NOT NULL DEFAULT 0 CHECK (points >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		// 2) Points accounts. available = earned - spent is derived, and the
		// check constraint makes a negative balance unrepresentable.
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS engage.accounts (
			user_id TEXT   NOT NULL PRIMARY KEY,
			earned  BIGINT NOT NULL DEFAULT 0 CHECK (earned >= 0),
			spent   BIGINT NOT NULL DEFAULT 0 CHECK (spent >= 0),
			CONSTRAINT accounts_available_chk CHECK (spent <= earned)
		)`,

		// 3) Like records: at most one per (user, note).
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS engage.likes (
			user_id  TEXT        NOT NULL,
			note_id  UUID        NOT NULL REFERENCES engage.notes(id) ON DELETE CASCADE,
			liked_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, note_id)
		)`,
		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS likes_note_idx
			ON engage.likes (note_id)`,

		// 4) Append-only spend trail. The (user_id, reason_ref) unique key is
		// the replay idempotency gate: a re-attempted spend with the same
		// reason_ref is recognized and never applied twice.
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS engage.spend_tx (
			id         BIGSERIAL   PRIMARY KEY,
			user_id    TEXT        NOT NULL,
			amount     BIGINT      NOT NULL CHECK (amount > 0),
			reason_ref TEXT        NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, reason_ref)
		)`,
		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS spend_tx_user_idx
			ON engage.spend_tx (user_id, created_at)`,
	}

	for _, migration := range migrations {
		if _, err := tx.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run schema migration: %w", err)
		}
	}

	return nil
}
