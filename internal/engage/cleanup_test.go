// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engage

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campushare/go-engage/engage"
)

func TestValidateAndCleanup_EndToEnd(t *testing.T) {
	h := newHarness(t)

	// A file host where one document has been taken down
	fileHost := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone.pdf" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer fileHost.Close()

	alive, err := h.service.CreateNote(h.ctx, "Alive note", fileHost.URL+"/alive.pdf", 50)
	require.NoError(t, err)
	gone, err := h.service.CreateNote(h.ctx, "Gone note", fileHost.URL+"/gone.pdf", 50)
	require.NoError(t, err)

	// The dead note has a like that must cascade away with it
	_, err = h.service.ToggleLike(h.ctx, h.userID, gone.ID)
	require.NoError(t, err)

	links, err := h.service.ListNoteLinks(h.ctx, time.Time{}, "", 100)
	require.NoError(t, err)
	require.Len(t, links, 2)

	report := h.service.ValidateLinks(h.ctx, links)
	require.Equal(t, 1, report.ValidCount)
	require.Equal(t, 1, report.DeletedCount)
	require.Zero(t, report.ErrorCount)
	require.Equal(t, []string{gone.ID}, report.DeletedNoteIDs())

	res, err := h.service.CleanupDeleted(h.ctx, report.DeletedNoteIDs())
	require.NoError(t, err)
	require.Equal(t, 1, res.DeletedCount)
	require.Empty(t, res.FailedIDs)

	// The dead note and its like are gone, the healthy one survives
	_, err = h.service.GetNote(h.ctx, gone.ID)
	require.ErrorIs(t, err, engage.ErrNoteNotFound)
	_, err = h.service.GetNote(h.ctx, alive.ID)
	require.NoError(t, err)

	var likeRows int
	err = h.pool.QueryRow(h.ctx, `SELECT COUNT(*) FROM engage.likes WHERE note_id = $1`, gone.ID).Scan(&likeRows)
	require.NoError(t, err)
	require.Zero(t, likeRows)
}

func TestCleanupDeleted_PartialBatch(t *testing.T) {
	h := newHarness(t)
	note := h.createNote("Doomed note", 50)

	res, err := h.service.CleanupDeleted(h.ctx, []string{note.ID, "not-a-uuid"})
	require.NoError(t, err)
	require.Equal(t, 1, res.DeletedCount)
	require.Equal(t, []string{"not-a-uuid"}, res.FailedIDs)
}

func TestCleanupDeleted_ReplayIsHarmless(t *testing.T) {
	h := newHarness(t)
	note := h.createNote("Doomed note", 50)

	res, err := h.service.CleanupDeleted(h.ctx, []string{note.ID})
	require.NoError(t, err)
	require.Equal(t, 1, res.DeletedCount)

	// Deleting an id that is already gone still counts as deleted
	res, err = h.service.CleanupDeleted(h.ctx, []string{note.ID})
	require.NoError(t, err)
	require.Equal(t, 1, res.DeletedCount)
	require.Empty(t, res.FailedIDs)
}

func TestListNotes_KeysetPagination(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.createNote("Paginated note", 50)
	}

	first, err := h.service.ListNotes(h.ctx, time.Time{}, "", 3)
	require.NoError(t, err)
	require.Len(t, first, 3)

	last := first[len(first)-1]
	second, err := h.service.ListNotes(h.ctx, last.CreatedAt, last.ID, 3)
	require.NoError(t, err)
	require.Len(t, second, 2)

	seen := map[string]bool{}
	for _, n := range append(first, second...) {
		require.False(t, seen[n.ID], "page overlap on %s", n.ID)
		seen[n.ID] = true
	}
}
