// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engagelite

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campushare/go-engage/engage"
)

func TestSpendPoints_RequiresSignIn(t *testing.T) {
	client := newTestClient(t, "http://localhost:0", "")
	_, err := client.SpendPoints(context.Background(), 10, NewReasonRef())
	require.ErrorIs(t, err, ErrSignInRequired)
}

func TestSpendPoints_InputValidation(t *testing.T) {
	client := newTestClient(t, "http://localhost:0", "u1")

	_, err := client.SpendPoints(context.Background(), 0, NewReasonRef())
	require.Error(t, err)

	_, err = client.SpendPoints(context.Background(), -10, NewReasonRef())
	require.Error(t, err)

	_, err = client.SpendPoints(context.Background(), 10, "")
	require.Error(t, err)
}

func TestSpendPoints_CommitReconcilesBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, engage.AccountResponse{
			UserID: "u1", Earned: 100, Spent: 40, Available: 60, Status: engage.StApplied,
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, "u1")
	out, err := client.SpendPoints(context.Background(), 40, "ref-1")
	require.NoError(t, err)
	require.Equal(t, StateCommitted, out.State)
	require.Equal(t, int64(100), out.Earned)
	require.Equal(t, int64(40), out.Spent)
	require.Equal(t, int64(60), out.Available)

	earned, spent, ok, err := client.CachedAccount()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(100), earned)
	require.Equal(t, int64(40), spent)
}

func TestSpendPoints_InsufficientBalanceRollsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(t, w, http.StatusConflict, "insufficient_balance", "not enough points",
			map[string]any{"required": float64(100), "available": float64(60), "deficit": float64(40)})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, "u1")
	require.NoError(t, client.setAccountCache(100, 40))

	out, err := client.SpendPoints(context.Background(), 100, "ref-1")
	var ibe *engage.InsufficientBalanceError
	require.ErrorAs(t, err, &ibe)
	require.Equal(t, int64(40), ibe.Deficit)
	require.Equal(t, StateRolledBack, out.State)

	// The optimistic deduction is undone
	earned, spent, ok, err := client.CachedAccount()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(100), earned)
	require.Equal(t, int64(40), spent)

	n, err := client.PendingCount()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSpendPoints_TransientFailureQueues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, "u1")
	require.NoError(t, client.setAccountCache(100, 0))

	out, err := client.SpendPoints(context.Background(), 30, "ref-1")
	require.NoError(t, err)
	require.True(t, out.Pending)
	require.Equal(t, StatePending, out.State)
	require.Equal(t, int64(70), out.Available)

	// Deduction is visible locally while the spend waits for replay
	_, spent, _, err := client.CachedAccount()
	require.NoError(t, err)
	require.Equal(t, int64(30), spent)

	n, err := client.PendingCount()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Retrying the same intent does not stack a second queue entry
	_, err = client.SpendPoints(context.Background(), 30, "ref-1")
	require.NoError(t, err)
	n, err = client.PendingCount()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRefreshAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		writeJSON(t, w, http.StatusOK, engage.AccountResponse{
			UserID: "u1", Earned: 250, Spent: 90, Available: 160,
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, "u1")
	resp, err := client.RefreshAccount(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(160), resp.Available)

	earned, spent, ok, err := client.CachedAccount()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(250), earned)
	require.Equal(t, int64(90), spent)

	anon := newTestClient(t, srv.URL, "")
	_, err = anon.RefreshAccount(context.Background())
	require.ErrorIs(t, err, ErrSignInRequired)
}
