// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engage

// REST/JSON models for HTTP API requests and responses
// These models are used for serialization/deserialization of HTTP requests and responses

// ToggleLikeRequest toggles the caller's like on a note.
// Note: the acting user is derived from the JWT sub claim, not from the body.
type ToggleLikeRequest struct {
	NoteID string `json:"note_id"`
}

// ToggleLikeResponse returns the authoritative post-toggle state
type ToggleLikeResponse struct {
	NoteID    string `json:"note_id"`
	Liked     bool   `json:"liked"`
	LikeCount int64  `json:"like_count"`
}

// SpendPointsRequest spends from the caller's balance. ReasonRef must be
// unique per spend; replays with the same value are reported already applied.
type SpendPointsRequest struct {
	Amount    int64  `json:"amount"`
	ReasonRef string `json:"reason_ref"`
}

// EarnPointsRequest credits the target account (admin surface)
type EarnPointsRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}

// AccountResponse reports a points balance
type AccountResponse struct {
	UserID    string `json:"user_id"`
	Earned    int64  `json:"earned"`
	Spent     int64  `json:"spent"`
	Available int64  `json:"available"`
	Status    string `json:"status,omitempty"` // set on spend responses: "applied" or "already_applied"
}

// MergeLikesRequest carries the provisional local like set collected before login
type MergeLikesRequest struct {
	NoteIDs []string `json:"note_ids"`
}

// MergeLikesResponse reports per-item merge outcomes
type MergeLikesResponse struct {
	SyncedCount int               `json:"synced_count"`
	Statuses    []LikeMergeStatus `json:"statuses"`
}

// ValidateLinksRequest names the links to probe; when Links is empty the
// server probes its own note listing.
type ValidateLinksRequest struct {
	Links []NoteLink `json:"links,omitempty"`
}

// CleanupRequest names the note ids flagged deleted by a validation run
type CleanupRequest struct {
	NoteIDs []string `json:"note_ids"`
}

// CleanupResponse reports per-item delete accounting
type CleanupResponse struct {
	DeletedCount int      `json:"deleted_count"`
	FailedIDs    []string `json:"failed_ids"`
}

// NotesResponse is one page of the note listing
type NotesResponse struct {
	Notes []Note `json:"notes"`
}

// ErrorResponse represents an error response. Details carries structured
// fields for business failures (e.g. required/available/deficit) so clients
// classify outcomes without parsing messages.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// StatusResponse represents service status response
type StatusResponse struct {
	Status  string `json:"status"`   // healthy, degraded, unhealthy
	Version string `json:"version"`  // API version
	AppName string `json:"app_name"` // Application name
}

func accountResponse(a Account, status string) AccountResponse {
	return AccountResponse{
		UserID:    a.UserID,
		Earned:    a.Earned,
		Spent:     a.Spent,
		Available: a.Available(),
		Status:    status,
	}
}
