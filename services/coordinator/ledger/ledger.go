// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger provides the enforcement ledger: process-wide (or durable)
// state recording, per correlation id, whether an enforcement action has been
// dispatched. It is the single synchronization point that delivers the
// at-most-once enforcement guarantee.
//
// # Claim Protocol
//
// The coordinator calls TryClaim immediately before invoking the enforcer and
// Confirm only after the enforcer call returns success. If the enforcer call
// fails after a successful claim, Release frees the claim so a legitimate
// retry can occur. The claim protects against concurrent double-dispatch, not
// against retrying a failed attempt.
//
// # Implementations
//
// MemoryLedger is the single-process default. BadgerLedger persists claims
// across restarts for deployments that need crash-recovery dedup; durability
// is a configuration choice, not a contract requirement.
package ledger

import "github.com/vigilops/vigil/services/coordinator/datatypes"

// Ledger is the enforcement ledger contract.
//
// Thread Safety: all methods must be safe for concurrent use; TryClaim must
// be atomic with respect to concurrent callers racing on the same id.
type Ledger interface {
	// TryClaim atomically reserves the id for enforcement. Returns true
	// and marks the id claimed if it was not previously claimed or
	// confirmed; false otherwise.
	TryClaim(correlationID string) (bool, error)

	// Confirm records the dispatched command after a successful send.
	// A confirmed id can never be claimed again.
	Confirm(correlationID string, cmd datatypes.EnforcementCommand) error

	// Release frees an unconfirmed claim so the enforcement step can be
	// retried. Releasing a confirmed id is a no-op.
	Release(correlationID string) error

	// IsClaimed reports whether the id is currently claimed or confirmed.
	IsClaimed(correlationID string) (bool, error)

	// Dispatched returns the confirmed command for the id, if any.
	Dispatched(correlationID string) (*datatypes.EnforcementCommand, error)

	// Close releases any resources held by the ledger.
	Close() error
}
