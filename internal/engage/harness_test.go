// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/campushare/go-engage/engage"
)

// EngageTestHarness spins up PostgreSQL in a container and wires the full
// stack: ledger service, JWT auth and the HTTP surface.
type EngageTestHarness struct {
	t         *testing.T
	ctx       context.Context
	container *postgres.PostgresContainer
	pool      *pgxpool.Pool
	service   *engage.Service
	jwtAuth   *engage.JWTAuth
	server    *httptest.Server
	logger    *slog.Logger

	userID string
	token  string
}

func newHarness(t *testing.T) *EngageTestHarness {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("engage_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	service, err := engage.NewService(pool, &engage.ServiceConfig{
		AppName:           "go-engage-integration-test",
		MaxMergeBatchSize: 100,
		MaxSpendAmount:    10_000,
	}, logger)
	require.NoError(t, err)

	jwtAuth := engage.NewJWTAuth("test-secret-key")
	handlers := engage.NewHTTPHandlers(service, jwtAuth, logger)
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux)
	server := httptest.NewServer(mux)

	userID := "user-" + uuid.New().String()
	token, err := jwtAuth.GenerateToken(userID, "session-"+uuid.New().String(), time.Hour)
	require.NoError(t, err)

	h := &EngageTestHarness{
		t:         t,
		ctx:       ctx,
		container: container,
		pool:      pool,
		service:   service,
		jwtAuth:   jwtAuth,
		server:    server,
		logger:    logger,
		userID:    userID,
		token:     token,
	}
	t.Cleanup(h.cleanup)
	return h
}

func (h *EngageTestHarness) cleanup() {
	h.server.Close()
	_ = h.service.Close()
	h.pool.Close()
	_ = h.container.Terminate(h.ctx)
}

func (h *EngageTestHarness) createNote(title string, points int64) *engage.Note {
	h.t.Helper()
	note, err := h.service.CreateNote(h.ctx, title, "https://files.example/"+uuid.New().String()+".pdf", points)
	require.NoError(h.t, err)
	return note
}

func (h *EngageTestHarness) earn(userID string, amount int64) {
	h.t.Helper()
	_, err := h.service.EarnPoints(h.ctx, userID, amount)
	require.NoError(h.t, err)
}

// postJSON sends an authenticated request to the harness HTTP server and
// returns the status code with the raw body.
func (h *EngageTestHarness) postJSON(token, path string, body any) (int, []byte) {
	h.t.Helper()
	data, err := json.Marshal(body)
	require.NoError(h.t, err)

	req, err := http.NewRequestWithContext(h.ctx, http.MethodPost, h.server.URL+path, bytes.NewReader(data))
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp.StatusCode, raw
}

func (h *EngageTestHarness) getJSON(token, path string) (int, []byte) {
	h.t.Helper()
	req, err := http.NewRequestWithContext(h.ctx, http.MethodGet, h.server.URL+path, nil)
	require.NoError(h.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp.StatusCode, raw
}
