// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SpendResult reports the outcome of a spend. Status is StApplied for a fresh
// spend and StAlreadyApplied when the (user, reason_ref) pair was seen before,
// in which case the balance is returned untouched.
type SpendResult struct {
	Status  string  `json:"status"`
	Account Account `json:"account"`
}

// SpendPoints atomically decrements the available balance and appends a spend
// transaction.
//
// Ordering inside the transaction:
//  1. Insert-first idempotency gate on (user_id, reason_ref). A replayed spend
//     hits the conflict, is reported as already applied, and mutates nothing.
//  2. Lock the account row and re-evaluate the precondition against current
//     state. Insufficient balance aborts the transaction, which also discards
//     the gate row - a spend that was refused leaves no trace and a later
//     retry gets a fresh precondition check.
//  3. Increment spent. The schema check (spent <= earned) backstops the
//     precondition so a negative balance can never commit.
func (s *Service) SpendPoints(ctx context.Context, userID string, amount int64, reasonRef string) (*SpendResult, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	userID, err := validateUserID(userID)
	if err != nil {
		return nil, err
	}
	if err := s.validateSpend(amount, reasonRef); err != nil {
		return nil, err
	}

	start := s.stageStart()
	result := &SpendResult{}
	err = withTxRetry(ctx, s.pool, func(tx pgx.Tx) error {
		var gateID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO engage.spend_tx (user_id, amount, reason_ref)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, reason_ref) DO NOTHING
			RETURNING id
		`, userID, amount, reasonRef).Scan(&gateID)
		if errors.Is(err, pgx.ErrNoRows) {
			// Duplicate replay: already applied, report current balance.
			account, loadErr := getAccountInTx(ctx, tx, userID)
			if loadErr != nil {
				return loadErr
			}
			result.Status = StAlreadyApplied
			result.Account = *account
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to append spend transaction: %w", err)
		}

		account := Account{UserID: userID}
		err = tx.QueryRow(ctx, `
			SELECT earned, spent FROM engage.accounts WHERE user_id = $1 FOR UPDATE
		`, userID).Scan(&account.Earned, &account.Spent)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// No account yet means nothing earned: refuse rather than
				// create an empty row as a side effect of a failed spend.
				return &InsufficientBalanceError{Required: amount, Available: 0, Deficit: amount}
			}
			return fmt.Errorf("failed to lock account: %w", err)
		}

		if available := account.Available(); available < amount {
			return &InsufficientBalanceError{
				Required:  amount,
				Available: available,
				Deficit:   amount - available,
			}
		}

		if err := tx.QueryRow(ctx, `
			UPDATE engage.accounts SET spent = spent + $2
			WHERE user_id = $1
			RETURNING earned, spent
		`, userID, amount).Scan(&account.Earned, &account.Spent); err != nil {
			return fmt.Errorf("failed to decrement balance: %w", err)
		}

		result.Status = StApplied
		result.Account = account
		return nil
	})
	s.observeStage(ctx, MetricsOpSpend, MetricsStageTotal, start, 1, 1, err != nil)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Spend processed",
		"user_id", userID, "amount", amount, "reason_ref", reasonRef,
		"status", result.Status, "available", result.Account.Available())
	return result, nil
}

// EarnPoints credits the user's account, creating it on first interaction.
// Awards are issued server-side (upload approved, note featured) and are not
// subject to the client pending queue, so no reason gate is kept for them.
func (s *Service) EarnPoints(ctx context.Context, userID string, amount int64) (*Account, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	userID, err := validateUserID(userID)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	account := Account{UserID: userID}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO engage.accounts (user_id, earned, spent)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id) DO UPDATE SET earned = engage.accounts.earned + EXCLUDED.earned
		RETURNING earned, spent
	`, userID, amount).Scan(&account.Earned, &account.Spent)
	if err != nil {
		return nil, fmt.Errorf("failed to credit account: %w", err)
	}

	s.logger.Debug("Points earned", "user_id", userID, "amount", amount, "available", account.Available())
	return &account, nil
}

// GetAccount returns the points account for a user
func (s *Service) GetAccount(ctx context.Context, userID string) (*Account, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	userID, err := validateUserID(userID)
	if err != nil {
		return nil, err
	}

	var account *Account
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		a, err := getAccountInTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// ListSpendTransactions returns the spend audit trail for a user, newest first
func (s *Service) ListSpendTransactions(ctx context.Context, userID string, limit int) ([]SpendTransaction, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	userID, err := validateUserID(userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, amount, reason_ref, created_at
		FROM engage.spend_tx
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list spend transactions: %w", err)
	}
	defer rows.Close()

	var out []SpendTransaction
	for rows.Next() {
		var t SpendTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.ReasonRef, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan spend transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spend transactions: %w", err)
	}
	return out, nil
}

func getAccountInTx(ctx context.Context, tx pgx.Tx, userID string) (*Account, error) {
	account := Account{UserID: userID}
	err := tx.QueryRow(ctx, `
		SELECT earned, spent FROM engage.accounts WHERE user_id = $1
	`, userID).Scan(&account.Earned, &account.Spent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &account, nil
}
