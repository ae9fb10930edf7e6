// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store implements the gateway's Postgres access layer.
//
// All SQL lives here. Queries are parameterized throughout; nothing from a
// request body is ever interpolated into SQL text.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/vigilops/vigil/services/gateway/datatypes"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the Postgres connection pool.
//
// Thread Safety: safe for concurrent use; *sql.DB manages its own pool.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	slog.Info("Connected to Postgres")
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool. Used by tests with sqlmock-style fakes.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetUser loads one account holder by account id.
func (s *Store) GetUser(ctx context.Context, accountID string) (*datatypes.User, error) {
	const q = `
		SELECT account_id, ext_user_id, display_name, email, status, created_at
		FROM users
		WHERE account_id = $1`

	var u datatypes.User
	err := s.db.QueryRowContext(ctx, q, accountID).Scan(
		&u.AccountID, &u.ExtUserID, &u.DisplayName, &u.Email, &u.Status, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// TransactionHistory returns the account's most recent transactions, in or
// out, newest first.
func (s *Store) TransactionHistory(ctx context.Context, accountID string, limit int) ([]datatypes.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT transaction_id, from_acct, to_acct, amount, timestamp
		FROM transactions
		WHERE from_acct = $1 OR to_acct = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, q, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transaction history: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// NewTransactions returns transactions strictly after the given timestamp,
// oldest first, for the monitor's polling loop.
func (s *Store) NewTransactions(ctx context.Context, after time.Time, limit int) ([]datatypes.Transaction, error) {
	if limit <= 0 {
		limit = 200
	}
	const q = `
		SELECT transaction_id, from_acct, to_acct, amount, timestamp
		FROM transactions
		WHERE timestamp > $1
		ORDER BY timestamp ASC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, q, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query new transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// LockAccount marks the account locked and records the lock reason.
//
// # Description
//
//	Idempotent: locking an already-locked account records nothing and
//	reports AlreadyLocked. The status flip and the audit row commit in
//	one transaction so a lock can never exist without its reason.
func (s *Store) LockAccount(ctx context.Context, accountID string, req datatypes.LockRequest) (*datatypes.LockResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin lock tx: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM users WHERE account_id = $1 FOR UPDATE`, accountID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock row: %w", err)
	}

	if status == datatypes.AccountStatusLocked {
		return &datatypes.LockResult{
			AccountID:     accountID,
			Status:        status,
			AlreadyLocked: true,
		}, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET status = $1 WHERE account_id = $2`,
		datatypes.AccountStatusLocked, accountID); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO account_locks (account_id, reason, correlation_id, locked_at)
		 VALUES ($1, $2, $3, NOW())`,
		accountID, req.Reason, req.CorrelationID); err != nil {
		return nil, fmt.Errorf("insert lock record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lock tx: %w", err)
	}

	slog.Info("Account locked",
		"account_id", accountID, "correlation_id", req.CorrelationID)
	return &datatypes.LockResult{
		AccountID: accountID,
		Status:    datatypes.AccountStatusLocked,
	}, nil
}

func scanTransactions(rows *sql.Rows) ([]datatypes.Transaction, error) {
	var out []datatypes.Transaction
	for rows.Next() {
		var t datatypes.Transaction
		if err := rows.Scan(&t.TransactionID, &t.FromAccountID, &t.ToAccountID, &t.Amount, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}
