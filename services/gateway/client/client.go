// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package client is the Go client for the data gateway, used by the
// investigator, enforcer, and monitor services.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vigilops/vigil/services/gateway/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("vigil.gateway.client")

// Client talks to the gateway service over HTTP.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a client for the gateway at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetUser fetches one account holder.
func (c *Client) GetUser(ctx context.Context, accountID string) (*datatypes.User, error) {
	var user datatypes.User
	path := "/v1/users/" + url.PathEscape(accountID)
	if err := c.getJSON(ctx, path, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// TransactionHistory fetches an account's recent transactions.
func (c *Client) TransactionHistory(ctx context.Context, accountID string, limit int) ([]datatypes.Transaction, error) {
	var body struct {
		Transactions []datatypes.Transaction `json:"transactions"`
	}
	path := fmt.Sprintf("/v1/accounts/%s/transactions?limit=%d", url.PathEscape(accountID), limit)
	if err := c.getJSON(ctx, path, &body); err != nil {
		return nil, err
	}
	return body.Transactions, nil
}

// NewTransactions fetches transactions after the given timestamp, oldest
// first.
func (c *Client) NewTransactions(ctx context.Context, after time.Time, limit int) ([]datatypes.Transaction, error) {
	var body struct {
		Transactions []datatypes.Transaction `json:"transactions"`
	}
	path := fmt.Sprintf("/v1/transactions/new?after=%s&limit=%d",
		url.QueryEscape(after.Format(time.RFC3339)), limit)
	if err := c.getJSON(ctx, path, &body); err != nil {
		return nil, err
	}
	return body.Transactions, nil
}

// LockAccount locks the account. Idempotent on the gateway side.
func (c *Client) LockAccount(ctx context.Context, accountID string, req datatypes.LockRequest) (*datatypes.LockResult, error) {
	ctx, span := tracer.Start(ctx, "gateway.LockAccount")
	defer span.End()
	span.SetAttributes(attribute.String("vigil.account_id", accountID))

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal lock request: %w", err)
	}
	path := fmt.Sprintf("%s/v1/accounts/%s/lock", c.baseURL, url.PathEscape(accountID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create lock request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway lock call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read lock response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway lock failed with status %d: %s", resp.StatusCode, raw)
	}

	var result datatypes.LockResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse lock response: %w", err)
	}
	return &result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create gateway request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse gateway response: %w", err)
	}
	return nil
}
