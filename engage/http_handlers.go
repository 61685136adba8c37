// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engage

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// ClientAuthenticator extracts user and session identity from HTTP requests.
// Implementations should validate auth (e.g., JWT) and provide both identifiers.
type ClientAuthenticator interface {
	GetUserID(r *http.Request) (string, error)
	GetSessionID(r *http.Request) (string, error)
}

// HTTPHandlers provides HTTP handlers for the engagement API
type HTTPHandlers struct {
	service       *Service
	authenticator ClientAuthenticator
	logger        *slog.Logger
}

// NewHTTPHandlers creates a new instance of engagement handlers
func NewHTTPHandlers(service *Service, authenticator ClientAuthenticator, logger *slog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service:       service,
		authenticator: authenticator,
		logger:        logger,
	}
}

// RegisterRoutes attaches all handlers to the given mux
func (h *HTTPHandlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/engage/like-toggle", h.HandleToggleLike)
	mux.HandleFunc("/engage/likes-sync", h.HandleMergeLikes)
	mux.HandleFunc("/engage/likes", h.HandleListLikes)
	mux.HandleFunc("/engage/points-spend", h.HandleSpendPoints)
	mux.HandleFunc("/engage/points-earn", h.HandleEarnPoints)
	mux.HandleFunc("/engage/account", h.HandleGetAccount)
	mux.HandleFunc("/engage/notes", h.HandleListNotes)
	mux.HandleFunc("/engage/links-validate", h.HandleValidateLinks)
	mux.HandleFunc("/engage/links-cleanup", h.HandleCleanup)
	mux.HandleFunc("/engage/status", h.HandleStatus)
}

// HandleToggleLike flips the caller's like on a note and returns the
// authoritative count
func (h *HTTPHandlers) HandleToggleLike(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed", nil)
		return
	}

	userID, err := h.authenticator.GetUserID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error(), nil)
		return
	}

	var req ToggleLikeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse toggle request", nil)
		return
	}

	result, err := h.service.ToggleLike(r.Context(), userID, req.NoteID)
	if err != nil {
		h.writeServiceError(w, r, err, "toggle_failed")
		return
	}

	h.writeJSON(w, &ToggleLikeResponse{
		NoteID:    result.NoteID,
		Liked:     result.Liked,
		LikeCount: result.LikeCount,
	})
}

// HandleMergeLikes merges a provisional local like set into the ledger
func (h *HTTPHandlers) HandleMergeLikes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed", nil)
		return
	}

	userID, err := h.authenticator.GetUserID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error(), nil)
		return
	}

	var req MergeLikesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse merge request", nil)
		return
	}

	result, err := h.service.MergeLikes(r.Context(), userID, req.NoteIDs)
	if err != nil {
		h.writeServiceError(w, r, err, "merge_failed")
		return
	}

	h.writeJSON(w, &MergeLikesResponse{
		SyncedCount: result.SyncedCount,
		Statuses:    result.Statuses,
	})
}

// HandleListLikes returns the caller's current like records
func (h *HTTPHandlers) HandleListLikes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed", nil)
		return
	}

	userID, err := h.authenticator.GetUserID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error(), nil)
		return
	}

	noteIDs, err := h.service.ListUserLikes(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err, "list_likes_failed")
		return
	}
	if noteIDs == nil {
		noteIDs = []string{}
	}

	h.writeJSON(w, map[string][]string{"note_ids": noteIDs})
}

// HandleSpendPoints decrements the caller's balance with replay protection
func (h *HTTPHandlers) HandleSpendPoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed", nil)
		return
	}

	userID, err := h.authenticator.GetUserID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error(), nil)
		return
	}

	var req SpendPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse spend request", nil)
		return
	}

	result, err := h.service.SpendPoints(r.Context(), userID, req.Amount, req.ReasonRef)
	if err != nil {
		h.writeServiceError(w, r, err, "spend_failed")
		return
	}

	resp := accountResponse(result.Account, result.Status)
	h.writeJSON(w, &resp)
}

// HandleEarnPoints credits an account (admin surface)
func (h *HTTPHandlers) HandleEarnPoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed", nil)
		return
	}

	if _, err := h.authenticator.GetUserID(r); err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error(), nil)
		return
	}

	var req EarnPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse earn request", nil)
		return
	}

	account, err := h.service.EarnPoints(r.Context(), req.UserID, req.Amount)
	if err != nil {
		h.writeServiceError(w, r, err, "earn_failed")
		return
	}

	resp := accountResponse(*account, "")
	h.writeJSON(w, &resp)
}

// HandleGetAccount returns the caller's points balance
func (h *HTTPHandlers) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed", nil)
		return
	}

	userID, err := h.authenticator.GetUserID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error(), nil)
		return
	}

	account, err := h.service.GetAccount(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// First interaction: an empty balance, not an error.
			resp := accountResponse(Account{UserID: userID}, "")
			h.writeJSON(w, &resp)
			return
		}
		h.writeServiceError(w, r, err, "account_failed")
		return
	}

	resp := accountResponse(*account, "")
	h.writeJSON(w, &resp)
}

// HandleListNotes pages through note records
func (h *HTTPHandlers) HandleListNotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed", nil)
		return
	}

	if _, err := h.authenticator.GetUserID(r); err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error(), nil)
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}

	var createdAfter time.Time
	if afterStr := r.URL.Query().Get("created_after"); afterStr != "" {
		parsed, err := time.Parse(time.RFC3339Nano, afterStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "created_after must be RFC 3339", nil)
			return
		}
		createdAfter = parsed
	}
	afterID := r.URL.Query().Get("after_id")

	notes, err := h.service.ListNotes(r.Context(), createdAfter, afterID, limit)
	if err != nil {
		h.writeServiceError(w, r, err, "list_notes_failed")
		return
	}
	if notes == nil {
		notes = []Note{}
	}

	h.writeJSON(w, &NotesResponse{Notes: notes})
}

// HandleValidateLinks runs one probe batch and returns the report.
// Scheduling is the caller's concern: one request, one run, one report.
func (h *HTTPHandlers) HandleValidateLinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed", nil)
		return
	}

	if _, err := h.authenticator.GetUserID(r); err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error(), nil)
		return
	}

	var req ValidateLinksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse validate request", nil)
		return
	}

	links := req.Links
	if len(links) == 0 {
		var err error
		links, err = h.service.ListNoteLinks(r.Context(), time.Time{}, "", 1000)
		if err != nil {
			h.writeServiceError(w, r, err, "validate_failed")
			return
		}
	}

	report := h.service.ValidateLinks(r.Context(), links)
	h.writeJSON(w, report)
}

// HandleCleanup batch-deletes notes flagged deleted by a validation run
func (h *HTTPHandlers) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed", nil)
		return
	}

	if _, err := h.authenticator.GetUserID(r); err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error(), nil)
		return
	}

	var req CleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse cleanup request", nil)
		return
	}

	result, err := h.service.CleanupDeleted(r.Context(), req.NoteIDs)
	if err != nil {
		h.writeServiceError(w, r, err, "cleanup_failed")
		return
	}

	h.writeJSON(w, &CleanupResponse{
		DeletedCount: result.DeletedCount,
		FailedIDs:    result.FailedIDs,
	})
}

// HandleStatus reports service health
func (h *HTTPHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed", nil)
		return
	}

	h.writeJSON(w, &StatusResponse{
		Status:  "healthy",
		Version: "v1",
		AppName: h.service.config.AppName,
	})
}

// writeServiceError maps service errors onto the HTTP taxonomy: validation to
// 400, business refusals to 409, missing records to 404, everything else 500.
func (h *HTTPHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		h.writeError(w, http.StatusBadRequest, "validation_failed", ve.Error(), map[string]any{
			"field":  ve.Field,
			"reason": ve.Reason,
		})
		return
	}

	var ibe *InsufficientBalanceError
	if errors.As(err, &ibe) {
		h.writeError(w, http.StatusConflict, ReasonInsufficientBalance, ibe.Error(), map[string]any{
			"required":  ibe.Required,
			"available": ibe.Available,
			"deficit":   ibe.Deficit,
		})
		return
	}

	if errors.Is(err, ErrNoteNotFound) {
		h.writeError(w, http.StatusNotFound, ReasonNoteNotFound, err.Error(), nil)
		return
	}

	h.logger.Error("Request failed", "error", err, "path", r.URL.Path)
	h.writeError(w, http.StatusInternalServerError, fallback, "Internal error", nil)
}

func (h *HTTPHandlers) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *HTTPHandlers) writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := &ErrorResponse{Error: code, Message: message, Details: details}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode error response", "error", err)
	}
}
