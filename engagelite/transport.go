// Copyright 2025 CampuShare Authors
// SPDX-License-Identifier: Apache-2.0

package engagelite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/campushare/go-engage/engage"
)

// doJSON posts a JSON request to path and decodes the response into out.
// Failures are classified structurally at this single boundary:
//   - request build errors, connectivity errors, timeouts, 5xx and 429
//     responses become *TransientError
//   - other non-2xx responses are decoded as engage.ErrorResponse and become
//     typed terminal errors
func (c *Client) doJSON(ctx context.Context, path string, req any, out any) error {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.send(httpReq, path, out)
}

// getJSON issues an authenticated GET and decodes the response into out,
// with the same failure classification as doJSON.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.send(httpReq, path, out)
}

func (c *Client) send(httpReq *http.Request, path string, out any) error {
	if c.Token != nil {
		token, err := c.Token(httpReq.Context())
		if err != nil {
			return fmt.Errorf("failed to get token: %w", err)
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		// http.Client wraps connectivity and timeout failures in *url.Error
		return &TransientError{Op: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Op: path, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return &TransientError{
			Op:  path,
			Err: fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body)),
		}
	default:
		return terminalFromResponse(resp.StatusCode, body)
	}
}

// terminalFromResponse turns a 4xx body into a typed terminal error
func terminalFromResponse(status int, body []byte) error {
	var er engage.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error == "" {
		return &TerminalError{
			Code:    fmt.Sprintf("http_%d", status),
			Message: string(body),
		}
	}

	if er.Error == engage.ReasonInsufficientBalance {
		return &engage.InsufficientBalanceError{
			Required:  detailInt64(er.Details, "required"),
			Available: detailInt64(er.Details, "available"),
			Deficit:   detailInt64(er.Details, "deficit"),
		}
	}

	return &TerminalError{Code: er.Error, Message: er.Message, Details: er.Details}
}

func detailInt64(details map[string]any, key string) int64 {
	// JSON numbers decode as float64
	if v, ok := details[key].(float64); ok {
		return int64(v)
	}
	return 0
}

func (c *Client) remoteToggleLike(ctx context.Context, noteID string) (*engage.ToggleLikeResponse, error) {
	var resp engage.ToggleLikeResponse
	req := engage.ToggleLikeRequest{NoteID: noteID}
	if err := c.doJSON(ctx, "/engage/like-toggle", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) remoteSpendPoints(ctx context.Context, amount int64, reasonRef string) (*engage.AccountResponse, error) {
	var resp engage.AccountResponse
	req := engage.SpendPointsRequest{Amount: amount, ReasonRef: reasonRef}
	if err := c.doJSON(ctx, "/engage/points-spend", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) remoteMergeLikes(ctx context.Context, noteIDs []string) (*engage.MergeLikesResponse, error) {
	var resp engage.MergeLikesResponse
	req := engage.MergeLikesRequest{NoteIDs: noteIDs}
	if err := c.doJSON(ctx, "/engage/likes-sync", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) remoteGetAccount(ctx context.Context) (*engage.AccountResponse, error) {
	var resp engage.AccountResponse
	if err := c.getJSON(ctx, "/engage/account", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
