// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Prober performs a bounded existence probe against an externally hosted file
// reference and returns the HTTP status code.
type Prober interface {
	Probe(ctx context.Context, url string) (int, error)
}

// HTTPProber probes with a HEAD request under a per-probe timeout
type HTTPProber struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPProber creates a prober with the given per-probe timeout
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Probe issues a HEAD request and returns the response status code
func (p *HTTPProber) Probe(ctx context.Context, url string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// NoteLink pairs a note with its externally hosted file reference
type NoteLink struct {
	NoteID string `json:"note_id"`
	URL    string `json:"url"`
}

// LinkProbeResult classifies a single probe. HTTP 2xx is valid, 404 is deleted
// (a first-class outcome feeding cleanup, not a fault), and everything else -
// timeout, 5xx, transport error - is errored and excluded from cleanup.
type LinkProbeResult struct {
	NoteID     string `json:"note_id"`
	URL        string `json:"url"`
	Status     string `json:"status"` // "valid", "deleted", "errored"
	HTTPStatus int    `json:"http_status,omitempty"`
	Message    string `json:"message,omitempty"`
}

// LinkReport aggregates one validation run: exactly one result per input link
type LinkReport struct {
	ValidCount   int               `json:"valid_count"`
	DeletedCount int               `json:"deleted_count"`
	ErrorCount   int               `json:"error_count"`
	Results      []LinkProbeResult `json:"results"`
}

// DeletedNoteIDs returns the ids whose references probed as gone, the input
// for CleanupDeleted.
func (r *LinkReport) DeletedNoteIDs() []string {
	var ids []string
	for _, res := range r.Results {
		if res.Status == LinkDeleted {
			ids = append(ids, res.NoteID)
		}
	}
	return ids
}

// CleanupResult reports a batch delete with per-item accounting
type CleanupResult struct {
	DeletedCount int      `json:"deleted_count"`
	FailedIDs    []string `json:"failed_ids"`
}

// ValidateLinks probes every link and classifies each one. Probes on distinct
// items run concurrently up to ProbeConcurrency, each under its own timeout,
// so one unreachable host cannot stall the run. The report always contains a
// result for every input; a run is never aborted by a single item.
func (s *Service) ValidateLinks(ctx context.Context, links []NoteLink) *LinkReport {
	start := s.stageStart()
	report := &LinkReport{Results: make([]LinkProbeResult, len(links))}

	sem := make(chan struct{}, s.config.ProbeConcurrency)
	var wg sync.WaitGroup
	for i := range links {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			report.Results[i] = s.probeOne(ctx, links[i])
		}(i)
	}
	wg.Wait()

	for _, res := range report.Results {
		switch res.Status {
		case LinkValid:
			report.ValidCount++
		case LinkDeleted:
			report.DeletedCount++
		default:
			report.ErrorCount++
		}
	}

	s.observeStage(ctx, MetricsOpValidate, MetricsStageTotal, start, len(links), 1, report.ErrorCount > 0)
	s.logger.Info("Link validation run complete",
		"links", len(links), "valid", report.ValidCount,
		"deleted", report.DeletedCount, "errored", report.ErrorCount)
	return report
}

func (s *Service) probeOne(ctx context.Context, link NoteLink) LinkProbeResult {
	result := LinkProbeResult{NoteID: link.NoteID, URL: link.URL}

	if link.URL == "" {
		result.Status = LinkErrored
		result.Message = "missing file url"
		return result
	}

	code, err := s.prober.Probe(ctx, link.URL)
	if err != nil {
		result.Status = LinkErrored
		result.Message = err.Error()
		return result
	}

	result.HTTPStatus = code
	switch {
	case code >= 200 && code < 300:
		result.Status = LinkValid
	case code == http.StatusNotFound:
		result.Status = LinkDeleted
	default:
		result.Status = LinkErrored
		result.Message = fmt.Sprintf("unexpected status %d", code)
	}
	return result
}

// CleanupDeleted removes the notes whose references were flagged deleted.
// Each id is deleted in its own transaction: one failing delete is recorded
// in FailedIDs and never blocks the rest. Deleting an id that is already gone
// counts as deleted, so replaying a cleanup is harmless.
func (s *Service) CleanupDeleted(ctx context.Context, noteIDs []string) (*CleanupResult, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	start := s.stageStart()
	result := &CleanupResult{FailedIDs: []string{}}
	for _, rawID := range noteIDs {
		noteID, err := parseNoteID(rawID)
		if err != nil {
			s.logger.Warn("Cleanup skipping malformed id", "note_id", rawID)
			result.FailedIDs = append(result.FailedIDs, rawID)
			continue
		}

		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			// Likes cascade via FK; delete the note row itself.
			_, err := tx.Exec(ctx, `DELETE FROM engage.notes WHERE id = $1`, noteID)
			return err
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("cleanup aborted: %w", err)
			}
			s.logger.Warn("Cleanup delete failed", "note_id", noteID, "error", err)
			result.FailedIDs = append(result.FailedIDs, rawID)
			continue
		}
		result.DeletedCount++
	}

	s.observeStage(ctx, MetricsOpCleanup, MetricsStageTotal, start, len(noteIDs), 1, len(result.FailedIDs) > 0)
	s.logger.Info("Cleanup run complete",
		"ids", len(noteIDs), "deleted", result.DeletedCount, "failed", len(result.FailedIDs))
	return result, nil
}
