// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engagelite

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/campushare/go-engage/engage"
)

// SpendOutcome reports the locally visible balance after a spend attempt
type SpendOutcome struct {
	ReasonRef string
	Earned    int64
	Spent     int64
	Available int64
	State     MutationState
	Pending   bool // true when the spend failed transiently and was queued
}

// NewReasonRef returns a fresh spend idempotency reference. Generate one per
// user intent and reuse it across retries of that intent.
func NewReasonRef() string {
	return uuid.New().String()
}

// SpendPoints deducts amount from the signed-in user's balance.
//
// The cached balance moves optimistically before the server is asked. On
// success the cache is reconciled to the server's authoritative figures. On a
// terminal rejection (insufficient balance included) the cached balance is
// restored and the typed error returned. On a transient failure the
// optimistic deduction is kept and the spend queued for replay under
// reasonRef; a replay the server has already applied reports success without
// double-charging.
//
// Spending requires a signed-in user; anonymous clients get ErrSignInRequired.
func (c *Client) SpendPoints(ctx context.Context, amount int64, reasonRef string) (*SpendOutcome, error) {
	if c.Anonymous() {
		return nil, ErrSignInRequired
	}
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if reasonRef == "" {
		return nil, fmt.Errorf("reasonRef cannot be empty")
	}

	// Snapshot and optimistic deduction
	c.writeMu.Lock()
	earned, spent, cached, err := c.CachedAccount()
	if err != nil {
		c.writeMu.Unlock()
		return nil, err
	}
	if cached {
		if err := c.setAccountCache(earned, spent+amount); err != nil {
			c.writeMu.Unlock()
			return nil, err
		}
	}
	c.writeMu.Unlock()

	resp, err := c.remoteSpendPoints(ctx, amount, reasonRef)
	switch {
	case err == nil:
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		if err := c.setAccountCache(resp.Earned, resp.Spent); err != nil {
			return nil, err
		}
		return &SpendOutcome{
			ReasonRef: reasonRef,
			Earned:    resp.Earned,
			Spent:     resp.Spent,
			Available: resp.Available,
			State:     StateCommitted,
		}, nil

	case IsTransient(err):
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		if qerr := c.enqueueSpend(amount, reasonRef); qerr != nil {
			return nil, qerr
		}
		c.logger.Warn("spend queued after transient failure",
			"reason_ref", reasonRef, "amount", amount, "error", err)
		return &SpendOutcome{
			ReasonRef: reasonRef,
			Earned:    earned,
			Spent:     spent + amount,
			Available: earned - spent - amount,
			State:     StatePending,
			Pending:   true,
		}, nil

	default:
		// Terminal rejection: restore the snapshot
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		if cached {
			if rerr := c.setAccountCache(earned, spent); rerr != nil {
				return nil, rerr
			}
		}
		return &SpendOutcome{
			ReasonRef: reasonRef,
			Earned:    earned,
			Spent:     spent,
			Available: earned - spent,
			State:     StateRolledBack,
		}, err
	}
}

// RefreshAccount fetches the authoritative balance and updates the cache
func (c *Client) RefreshAccount(ctx context.Context) (*engage.AccountResponse, error) {
	if c.Anonymous() {
		return nil, ErrSignInRequired
	}
	resp, err := c.remoteGetAccount(ctx)
	if err != nil {
		return nil, err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.setAccountCache(resp.Earned, resp.Spent); err != nil {
		return nil, err
	}
	return resp, nil
}
