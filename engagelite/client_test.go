// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engagelite

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campushare/go-engage/engage"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// In-memory SQLite must stay on one connection or each conn gets its own DB
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func staticToken(token string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return token, nil }
}

func newTestClient(t *testing.T, baseURL, userID string) *Client {
	t.Helper()
	client, err := NewClient(newTestDB(t), baseURL, userID, staticToken("test-token"), DefaultConfig())
	require.NoError(t, err)
	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func writeAPIError(t *testing.T, w http.ResponseWriter, status int, code, message string, details map[string]any) {
	t.Helper()
	writeJSON(t, w, status, engage.ErrorResponse{Error: code, Message: message, Details: details})
}

func TestNewClient_Validation(t *testing.T) {
	db := newTestDB(t)

	_, err := NewClient(db, "", "u1", staticToken("t"), nil)
	require.Error(t, err)

	client, err := NewClient(db, "http://localhost:0", "", staticToken("t"), nil)
	require.NoError(t, err)
	require.True(t, client.Anonymous())
}

func TestEnsureSessionID_StableAcrossCalls(t *testing.T) {
	db := newTestDB(t)
	_, err := NewClient(db, "http://localhost:0", "", staticToken("t"), nil)
	require.NoError(t, err)

	first, err := EnsureSessionID(db)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := EnsureSessionID(db)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestSetUser(t *testing.T) {
	client := newTestClient(t, "http://localhost:0", "")
	require.True(t, client.Anonymous())

	require.Error(t, client.SetUser(""))

	require.NoError(t, client.SetUser("u1"))
	require.False(t, client.Anonymous())
	require.Equal(t, "u1", client.UserID)
}

func TestDoJSON_TransientOnConnectionRefused(t *testing.T) {
	// A server that is immediately closed gives a refused connection
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := newTestClient(t, srv.URL, "u1")
	_, err := client.remoteToggleLike(context.Background(), "n1")
	require.True(t, IsTransient(err))
}

func TestDoJSON_TransientOn5xxAnd429(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusTooManyRequests} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		client := newTestClient(t, srv.URL, "u1")

		_, err := client.remoteToggleLike(context.Background(), "n1")
		require.True(t, IsTransient(err), "status %d must classify transient", status)
		srv.Close()
	}
}

func TestDoJSON_TerminalDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(t, w, http.StatusConflict, "insufficient_balance", "not enough points",
			map[string]any{"required": float64(100), "available": float64(60), "deficit": float64(40)})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, "u1")
	_, err := client.remoteSpendPoints(context.Background(), 100, "ref-1")
	require.False(t, IsTransient(err))

	var ibe *engage.InsufficientBalanceError
	require.ErrorAs(t, err, &ibe)
	require.Equal(t, int64(100), ibe.Required)
	require.Equal(t, int64(60), ibe.Available)
	require.Equal(t, int64(40), ibe.Deficit)
}

func TestDoJSON_SendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(t, w, http.StatusOK, engage.ToggleLikeResponse{NoteID: "n1", Liked: true, LikeCount: 1})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, "u1")
	_, err := client.remoteToggleLike(context.Background(), "n1")
	require.NoError(t, err)
	require.Equal(t, "Bearer test-token", gotAuth)
}
