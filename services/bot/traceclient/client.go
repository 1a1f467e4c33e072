// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package traceclient looks up trace records over the provenance service's
// read endpoint. The bot side consumes this read-only: records enrich
// prompts and are never written back.
package traceclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/AleutianAI/AleutianProvenance/services/provenance/datatypes"
)

// Lookup is the metadata-by-id collaborator interface the flows consume.
type Lookup interface {
	// Lookup returns the trace record for a response ID, or nil when the
	// record does not exist. Stale records are returned with stale=true;
	// callers decide whether expired provenance is still worth using.
	Lookup(ctx context.Context, responseID string) (md *datatypes.ResponseMetadata, stale bool, err error)
}

// Client is the HTTP Lookup implementation.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for a provenance service base URL,
// e.g. "http://localhost:12230".
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// Lookup implements the Lookup interface against GET /traces/{responseId}.
func (c *Client) Lookup(ctx context.Context, responseID string) (*datatypes.ResponseMetadata, bool, error) {
	u := fmt.Sprintf("%s/traces/%s", c.baseURL, url.PathEscape(responseID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build trace lookup request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("trace lookup %s: %w", responseID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var md datatypes.ResponseMetadata
		if err := json.NewDecoder(resp.Body).Decode(&md); err != nil {
			return nil, false, fmt.Errorf("decode trace %s: %w", responseID, err)
		}
		return &md, false, nil

	case http.StatusGone:
		// Stale envelope still carries the record.
		var envelope struct {
			Metadata *datatypes.ResponseMetadata `json:"metadata"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return nil, false, fmt.Errorf("decode stale trace %s: %w", responseID, err)
		}
		c.logger.Debug("trace record is stale", "response_id", responseID)
		return envelope.Metadata, true, nil

	case http.StatusNotFound:
		return nil, false, nil

	default:
		return nil, false, fmt.Errorf("trace lookup %s: unexpected status %d", responseID, resp.StatusCode)
	}
}
