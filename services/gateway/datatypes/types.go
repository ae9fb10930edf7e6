// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the gateway's wire and storage types.
package datatypes

import "time"

// User is one account holder as stored in the users table.
type User struct {
	AccountID   string    `json:"account_id"`
	ExtUserID   string    `json:"ext_user_id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Account statuses.
const (
	AccountStatusActive = "active"
	AccountStatusLocked = "locked"
)

// Transaction is one ledger row from the transactions table.
type Transaction struct {
	TransactionID string    `json:"transaction_id"`
	FromAccountID string    `json:"from_acct"`
	ToAccountID   string    `json:"to_acct"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// LockRequest asks the gateway to lock an account.
type LockRequest struct {
	// Reason is recorded on the lock row for the compliance trail.
	Reason string `json:"reason" binding:"required"`

	// CorrelationID ties the lock to the pipeline case that ordered it.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// LockResult reports the outcome of a lock operation.
type LockResult struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`

	// AlreadyLocked is true when the account was locked before this call.
	// The operation is idempotent; this flag is informational.
	AlreadyLocked bool `json:"already_locked"`
}
