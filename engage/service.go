// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service provides the authoritative gamification ledger: like records and
// counters, points accounts with an append-only spend trail, the batch like
// merge used after login, and the dead-link validation pipeline.
// This is the main SDK component that developers integrate into their applications.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	config *ServiceConfig
	prober Prober

	// Cleanup tracking
	mu     sync.RWMutex
	closed bool
}

// ServiceConfig holds configuration for the engagement service
type ServiceConfig struct {
	AppName           string        // Application name for connection tracking
	MaxMergeBatchSize int           // Maximum note ids in a single like merge (0 = unlimited)
	MaxSpendAmount    int64         // Maximum points per spend request (0 = unlimited)
	ProbeTimeout      time.Duration // Per-item timeout for link existence probes
	ProbeConcurrency  int           // Concurrent probes per validation run

	Prober Prober // Optional custom prober; defaults to an HTTP HEAD prober

	StageMetrics    StageMetricsRecorder // Optional stage timing sink
	LogStageTimings bool                 // Log stage timings at debug level
}

// NewService creates a new engagement service instance from an existing pool
// and initializes the engage schema.
func NewService(pool *pgxpool.Pool, config *ServiceConfig, logger *slog.Logger) (*Service, error) {
	if config == nil {
		config = &ServiceConfig{
			AppName: "go-engage-app",
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 10 * time.Second
	}
	if config.ProbeConcurrency <= 0 {
		config.ProbeConcurrency = 8
	}

	service := &Service{
		pool:   pool,
		logger: logger,
		config: config,
		prober: config.Prober,
	}
	if service.prober == nil {
		service.prober = NewHTTPProber(config.ProbeTimeout)
	}

	ctx := context.Background()
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := service.initializeSchemaInTx(ctx, tx); err != nil {
			logger.Error("Failed to initialize ledger schema", "error", err)
			return err
		}
		logger.Debug("Ledger schema initialized successfully")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engage service: %w", err)
	}

	return service, nil
}

// Close gracefully shuts down the service.
// It's safe to call multiple times.
// Note: This does NOT close the database pool - the caller is responsible for pool lifecycle
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil // Already closed
	}

	s.logger.Debug("Shutting down engage service")
	s.closed = true
	return nil
}

// Pool returns the underlying database connection pool
// This allows advanced users to execute custom queries
func (s *Service) Pool() *pgxpool.Pool {
	return s.pool
}

// checkClosed returns an error if the service has been closed
func (s *Service) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errors.New("engage service has been closed")
	}
	return nil
}
