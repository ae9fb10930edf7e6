// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilops/vigil/services/gateway/datatypes"
)

// =============================================================================
// GetUser Tests
// =============================================================================

func TestGetUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/users/acct-7", r.URL.Path)
		json.NewEncoder(w).Encode(datatypes.User{
			AccountID:   "acct-7",
			DisplayName: "Jo Doe",
			Status:      datatypes.AccountStatusActive,
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	user, err := c.GetUser(context.Background(), "acct-7")
	require.NoError(t, err)
	assert.Equal(t, "acct-7", user.AccountID)
	assert.Equal(t, datatypes.AccountStatusActive, user.Status)
}

func TestGetUser_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.GetUser(context.Background(), "no-such-account")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

// =============================================================================
// Transaction Query Tests
// =============================================================================

func TestTransactionHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts/acct-7/transactions", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(map[string]any{
			"transactions": []datatypes.Transaction{
				{TransactionID: "tx-2", FromAccountID: "acct-7", Amount: 900},
				{TransactionID: "tx-1", FromAccountID: "acct-7", Amount: 120},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	txns, err := c.TransactionHistory(context.Background(), "acct-7", 50)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "tx-2", txns[0].TransactionID)
}

func TestNewTransactions(t *testing.T) {
	after := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transactions/new", r.URL.Path)
		assert.Equal(t, after.Format(time.RFC3339), r.URL.Query().Get("after"))
		json.NewEncoder(w).Encode(map[string]any{
			"transactions": []datatypes.Transaction{
				{TransactionID: "tx-5", Amount: 4200, Timestamp: after.Add(time.Minute)},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	txns, err := c.NewTransactions(context.Background(), after, 200)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "tx-5", txns[0].TransactionID)
}

// =============================================================================
// LockAccount Tests
// =============================================================================

func TestLockAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/accounts/acct-7/lock", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req datatypes.LockRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "risk 9/10", req.Reason)
		assert.Equal(t, "corr-1", req.CorrelationID)

		json.NewEncoder(w).Encode(datatypes.LockResult{
			AccountID: "acct-7",
			Status:    datatypes.AccountStatusLocked,
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.LockAccount(context.Background(), "acct-7", datatypes.LockRequest{
		Reason:        "risk 9/10",
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.AccountStatusLocked, result.Status)
	assert.False(t, result.AlreadyLocked)
}

func TestLockAccount_AlreadyLocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(datatypes.LockResult{
			AccountID:     "acct-7",
			Status:        datatypes.AccountStatusLocked,
			AlreadyLocked: true,
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.LockAccount(context.Background(), "acct-7", datatypes.LockRequest{Reason: "dup"})
	require.NoError(t, err)
	assert.True(t, result.AlreadyLocked)
}

func TestLockAccount_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error": "db down"}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.LockAccount(context.Background(), "acct-7", datatypes.LockRequest{Reason: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

// TestNew_TrimsTrailingSlash keeps URL joining predictable for configs that
// end the base URL with a slash.
func TestNew_TrimsTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/acct-1", r.URL.Path)
		json.NewEncoder(w).Encode(datatypes.User{AccountID: "acct-1"})
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	_, err := c.GetUser(context.Background(), "acct-1")
	assert.NoError(t, err)
}
