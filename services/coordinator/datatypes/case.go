// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the core data model for the Vigil fraud-response
// pipeline: alerts entering the system, the case file produced by the
// investigator, the reviewer's verdict, the enforcement command dispatched to
// the enforcer, and the aggregate pipeline case tracking one alert's lifecycle.
//
// All types are plain data. Validation is performed with
// go-playground/validator tags so that payloads extracted from collaborator
// responses are checked before any downstream code touches them.
package datatypes

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
)

// caseValidate is the validator instance for pipeline datatypes.
var caseValidate *validator.Validate

func init() {
	caseValidate = validator.New()
}

// Alert is a transaction flagged by the sensor. Immutable once created;
// consumed exactly once by the coordinator per correlation id.
type Alert struct {
	// TransactionID identifies the flagged transaction in the ledger.
	TransactionID string `json:"transaction_id" binding:"required" validate:"required"`

	// FromAccountID is the account that initiated the transaction. This is
	// the account a protective action targets.
	FromAccountID string `json:"from_account_id" binding:"required" validate:"required"`

	// ToAccountID is the receiving account.
	ToAccountID string `json:"to_account_id,omitempty"`

	// Amount is the transaction amount in the ledger's base currency.
	Amount float64 `json:"amount" binding:"required" validate:"required,gt=0"`

	// Timestamp is when the transaction was observed.
	Timestamp time.Time `json:"timestamp"`

	// Reason is the sensor's detection reason (e.g. "amount above threshold").
	Reason string `json:"reason,omitempty"`
}

// Validate checks the alert against its validation tags.
func (a Alert) Validate() error {
	return caseValidate.Struct(a)
}

// CaseFile is the investigator's structured output. Owned by the coordinator
// once returned; never mutated, only read by the review step and the fallback
// policy.
type CaseFile struct {
	// RiskScore is the normalized fraud risk on a 0-10 scale.
	RiskScore float64 `json:"risk_score" validate:"gte=0,lte=10"`

	// Justification is the investigator's reasoning for the score.
	Justification string `json:"justification" validate:"required"`

	// UserDetails is enrichment data about the account holder, passed
	// through opaque so the reviewer sees what the investigator saw.
	UserDetails json.RawMessage `json:"user_details,omitempty"`

	// TransactionHistory is the account's recent transaction history.
	TransactionHistory json.RawMessage `json:"transaction_history,omitempty"`
}

// Validate checks the case file against its validation tags. A case file that
// fails validation is treated as an invalid investigator response, never
// patched up.
func (cf CaseFile) Validate() error {
	return caseValidate.Struct(cf)
}

// Verdict stances. The reviewer must return exactly one of these.
const (
	StanceConcur  = "concur"
	StanceDissent = "dissent"
)

// Verdict is the reviewer's structured output. Optional: if the reviewer hop
// fails the coordinator proceeds without one under the fallback policy.
type Verdict struct {
	// Stance is the reviewer's binary position on the case file.
	Stance string `json:"verdict" validate:"required,oneof=concur dissent"`

	// Rationale is the reviewer's reasoning.
	Rationale string `json:"rationale,omitempty"`
}

// Validate checks the verdict against its validation tags.
func (v Verdict) Validate() error {
	return caseValidate.Struct(v)
}

// Concurs reports whether the reviewer agreed with the investigation.
func (v Verdict) Concurs() bool {
	return v.Stance == StanceConcur
}

// ActionLockAccount freezes the target account pending manual review. It is
// currently the only enforcement action the pipeline issues.
const ActionLockAccount = "lock-account"

// EnforcementCommand is the action directive sent to the enforcer.
// Write-once: after dispatch it is recorded in the enforcement ledger and
// never reissued for the same correlation id.
type EnforcementCommand struct {
	// Action is the action kind, e.g. "lock-account".
	Action string `json:"action" validate:"required"`

	// TargetAccountID is the account the action applies to.
	TargetAccountID string `json:"target_account_id" validate:"required"`

	// Reason is a human-readable explanation recorded for audit.
	Reason string `json:"reason" validate:"required"`

	// CorrelationID binds the command to its originating alert.
	CorrelationID string `json:"correlation_id" validate:"required"`
}

// Validate checks the command against its validation tags.
func (c EnforcementCommand) Validate() error {
	return caseValidate.Struct(c)
}

// PipelineCase is the aggregate record tracking one alert's progress through
// the pipeline. The coordinator is the only writer; readers get copies.
type PipelineCase struct {
	// CorrelationID is the idempotency/tracing key for this case.
	CorrelationID string `json:"correlation_id"`

	// Alert is the flagged transaction that opened the case.
	Alert Alert `json:"alert"`

	// State is the current pipeline state (see the pipeline package).
	State string `json:"state"`

	// CaseFile is set once the investigation hop succeeds.
	CaseFile *CaseFile `json:"case_file,omitempty"`

	// Verdict is set once the review hop succeeds. May stay nil.
	Verdict *Verdict `json:"verdict,omitempty"`

	// Command is set once an enforcement command has been dispatched.
	Command *EnforcementCommand `json:"command,omitempty"`

	// Attempts counts collaborator call attempts per role.
	Attempts map[string]int `json:"attempts,omitempty"`

	// Disposition is the human-readable reason attached to the terminal
	// state, e.g. "benign: risk below threshold" or "enforcement dispatch
	// failed". Never empty once the case is terminal.
	Disposition string `json:"disposition,omitempty"`

	// CreatedAt is when the alert entered the pipeline.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the time of the last state transition.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy of the case that shares no mutable state with the
// receiver. The Attempts map is copied, so the snapshot can be read or
// serialized while the original keeps being written under the owner's lock.
// The pointer fields are shared: CaseFile, Verdict, and Command are
// write-once and never mutated after they are set.
func (p PipelineCase) Clone() PipelineCase {
	if p.Attempts != nil {
		attempts := make(map[string]int, len(p.Attempts))
		for role, n := range p.Attempts {
			attempts[role] = n
		}
		p.Attempts = attempts
	}
	return p
}
