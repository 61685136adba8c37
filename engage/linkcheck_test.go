// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type proberFunc func(ctx context.Context, url string) (int, error)

func (f proberFunc) Probe(ctx context.Context, url string) (int, error) {
	return f(ctx, url)
}

func newProbeService(t *testing.T, p Prober) *Service {
	t.Helper()
	return &Service{
		logger: slog.Default(),
		prober: p,
		config: &ServiceConfig{
			ProbeTimeout:     time.Second,
			ProbeConcurrency: 4,
		},
	}
}

func TestValidateLinks_Classification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		switch r.URL.Path {
		case "/gone.pdf":
			w.WriteHeader(http.StatusNotFound)
		case "/flaky.pdf":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	s := newProbeService(t, NewHTTPProber(time.Second))
	links := []NoteLink{
		{NoteID: "n1", URL: srv.URL + "/a.pdf"},
		{NoteID: "n2", URL: srv.URL + "/b.pdf"},
		{NoteID: "n3", URL: srv.URL + "/c.pdf"},
		{NoteID: "n4", URL: srv.URL + "/gone.pdf"},
		{NoteID: "n5", URL: srv.URL + "/flaky.pdf"},
	}

	report := s.ValidateLinks(context.Background(), links)
	require.Len(t, report.Results, len(links))
	require.Equal(t, 3, report.ValidCount)
	require.Equal(t, 1, report.DeletedCount)
	require.Equal(t, 1, report.ErrorCount)

	// Results stay aligned with the input order
	require.Equal(t, "n1", report.Results[0].NoteID)
	require.Equal(t, LinkValid, report.Results[0].Status)
	require.Equal(t, LinkDeleted, report.Results[3].Status)
	require.Equal(t, LinkErrored, report.Results[4].Status)

	require.Equal(t, []string{"n4"}, report.DeletedNoteIDs())
}

func TestValidateLinks_TimeoutIsErroredNotDeleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newProbeService(t, NewHTTPProber(50*time.Millisecond))
	report := s.ValidateLinks(context.Background(), []NoteLink{
		{NoteID: "slow", URL: srv.URL + "/slow.pdf"},
	})

	require.Equal(t, 1, report.ErrorCount)
	require.Equal(t, 0, report.DeletedCount)
	require.Equal(t, LinkErrored, report.Results[0].Status)
	require.Empty(t, report.DeletedNoteIDs())
}

func TestValidateLinks_MissingURL(t *testing.T) {
	s := newProbeService(t, proberFunc(func(ctx context.Context, url string) (int, error) {
		t.Errorf("prober must not be called for an empty url")
		return 0, nil
	}))

	report := s.ValidateLinks(context.Background(), []NoteLink{{NoteID: "n1", URL: ""}})
	require.Equal(t, 1, report.ErrorCount)
	require.Equal(t, LinkErrored, report.Results[0].Status)
	require.Equal(t, "missing file url", report.Results[0].Message)
}

func TestValidateLinks_OneResultPerInput(t *testing.T) {
	var calls atomic.Int64
	s := newProbeService(t, proberFunc(func(ctx context.Context, url string) (int, error) {
		if calls.Add(1)%2 == 0 {
			return 0, fmt.Errorf("connection refused")
		}
		return http.StatusOK, nil
	}))

	links := make([]NoteLink, 10)
	for i := range links {
		links[i] = NoteLink{NoteID: fmt.Sprintf("n%d", i), URL: fmt.Sprintf("https://files.example/%d.pdf", i)}
	}

	report := s.ValidateLinks(context.Background(), links)
	require.Len(t, report.Results, 10)
	require.Equal(t, 10, report.ValidCount+report.DeletedCount+report.ErrorCount)
	for i, res := range report.Results {
		require.Equal(t, links[i].NoteID, res.NoteID)
		require.NotEmpty(t, res.Status)
	}
}

func TestValidateLinks_EmptyInput(t *testing.T) {
	s := newProbeService(t, proberFunc(func(ctx context.Context, url string) (int, error) {
		return http.StatusOK, nil
	}))

	report := s.ValidateLinks(context.Background(), nil)
	require.Empty(t, report.Results)
	require.Zero(t, report.ValidCount)
	require.Zero(t, report.DeletedCount)
	require.Zero(t, report.ErrorCount)
}
