// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateNote registers a note record in the ledger. The id is generated here;
// upload handling and file storage live outside this service.
func (s *Service) CreateNote(ctx context.Context, title, fileURL string, points int64) (*Note, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(title) == "" {
		return nil, &ValidationError{Field: "title", Reason: "required"}
	}
	if points < 0 {
		return nil, &ValidationError{Field: "points", Reason: "must not be negative"}
	}

	note := Note{
		ID:      uuid.New().String(),
		Title:   strings.TrimSpace(title),
		FileURL: strings.TrimSpace(fileURL),
		Points:  points,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO engage.notes (id, title, file_url, points)
		VALUES ($1, $2, $3, $4)
		RETURNING like_count, created_at
	`, note.ID, note.Title, note.FileURL, note.Points).Scan(&note.LikeCount, &note.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	s.logger.Debug("Note created", "note_id", note.ID, "title", note.Title)
	return &note, nil
}

// GetNote returns a single note record
func (s *Service) GetNote(ctx context.Context, noteID string) (*Note, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	noteID, err := parseNoteID(noteID)
	if err != nil {
		return nil, err
	}

	var note Note
	err = s.pool.QueryRow(ctx, `
		SELECT id::text, title, file_url, like_count, points, created_at
		FROM engage.notes WHERE id = $1
	`, noteID).Scan(&note.ID, &note.Title, &note.FileURL, &note.LikeCount, &note.Points, &note.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("failed to load note: %w", err)
	}
	return &note, nil
}

// ListNotes pages through note records ordered by creation time then id, the
// listing that feeds validation runs. Pass the last seen (createdAfter, afterID)
// pair to fetch the next page; zero values start from the beginning.
func (s *Service) ListNotes(ctx context.Context, createdAfter time.Time, afterID string, limit int) ([]Note, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if afterID == "" {
		afterID = uuid.Nil.String()
	} else {
		var err error
		if afterID, err = parseNoteID(afterID); err != nil {
			return nil, err
		}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, title, file_url, like_count, points, created_at
		FROM engage.notes
		WHERE (created_at, id) > ($1, $2)
		ORDER BY created_at, id
		LIMIT $3
	`, createdAfter, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.Title, &n.FileURL, &n.LikeCount, &n.Points, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notes: %w", err)
	}
	return notes, nil
}

// ListNoteLinks returns (note id, file url) pairs for a validation run, using
// the same pagination contract as ListNotes.
func (s *Service) ListNoteLinks(ctx context.Context, createdAfter time.Time, afterID string, limit int) ([]NoteLink, error) {
	notes, err := s.ListNotes(ctx, createdAfter, afterID, limit)
	if err != nil {
		return nil, err
	}
	links := make([]NoteLink, 0, len(notes))
	for _, n := range notes {
		links = append(links, NoteLink{NoteID: n.ID, URL: n.FileURL})
	}
	return links, nil
}
