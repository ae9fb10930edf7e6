// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline implements the coordinator's state machine: the stateful
// core that drives one alert through investigate -> critique -> enforce,
// applies the risk-gating and fallback policy, and guarantees at-most-once
// enforcement per correlation id.
//
// # State Machine
//
//	NEW -> INVESTIGATING -> CRITIQUING -> {ENFORCING | RESOLVED}
//	                                          |
//	                                          v
//	                                 RESOLVED | FAILED
//
// Within one case the hops are strictly sequential; across cases everything
// runs concurrently. The enforcement ledger is the only cross-case
// synchronization point.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vigilops/vigil/pkg/extensions"
	"github.com/vigilops/vigil/services/coordinator/collaborator"
	"github.com/vigilops/vigil/services/coordinator/datatypes"
	"github.com/vigilops/vigil/services/coordinator/ledger"
	"github.com/vigilops/vigil/services/coordinator/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("vigil.coordinator.pipeline")

// Collaborator roles the coordinator invokes.
const (
	RoleInvestigator = "investigator"
	RoleReviewer     = "reviewer"
	RoleEnforcer     = "enforcer"
)

// Dispositions attached to terminal states by the coordinator itself.
// Policy dispositions (dissent, below threshold) live in policy.go.
const (
	DispositionEnforced             = "enforced: account locked"
	DispositionDuplicate            = "duplicate, already enforced"
	DispositionInvestigationFailed  = "investigation unavailable"
	DispositionInvalidInvestigation = "invalid investigator response"
	DispositionEnforcementFailed    = "enforcement dispatch failed"
	DispositionLedgerUnavailable    = "enforcement ledger unavailable"
)

// Config holds the coordinator's decision and retry policy.
type Config struct {
	// RiskThreshold is the gate value on the case file's 0-10 risk scale.
	RiskThreshold float64

	// Per-hop per-attempt deadlines.
	InvestigatorTimeout time.Duration
	ReviewerTimeout     time.Duration
	EnforcerTimeout     time.Duration

	// MaxAttempts is the retry ceiling for every hop.
	MaxAttempts int

	// Backoff is the base delay between attempts.
	Backoff time.Duration
}

// withDefaults fills zero fields with production defaults.
func (c Config) withDefaults() Config {
	if c.RiskThreshold <= 0 {
		c.RiskThreshold = 7
	}
	if c.InvestigatorTimeout <= 0 {
		c.InvestigatorTimeout = 60 * time.Second
	}
	if c.ReviewerTimeout <= 0 {
		c.ReviewerTimeout = 45 * time.Second
	}
	if c.EnforcerTimeout <= 0 {
		c.EnforcerTimeout = 15 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	return c
}

// Deps are the coordinator's injected collaborators. Caller and Ledger are
// required; the rest default to no-ops. Lifecycle is owned by the process
// entry point - there are no ambient singletons here.
type Deps struct {
	Caller  collaborator.Caller
	Ledger  ledger.Ledger
	Audit   extensions.AuditLogger
	Metrics *observability.PipelineMetrics
	Hub     *EventHub
}

// Coordinator drives pipeline cases. One instance serves the whole process;
// each alert is processed on its caller's goroutine with no global lock
// serializing unrelated cases.
//
// Thread Safety: safe for concurrent use.
type Coordinator struct {
	cfg     Config
	caller  collaborator.Caller
	ledger  ledger.Ledger
	audit   extensions.AuditLogger
	metrics *observability.PipelineMetrics
	hub     *EventHub

	mu    sync.Mutex
	cases map[string]*datatypes.PipelineCase
}

// NewCoordinator builds a Coordinator.
func NewCoordinator(cfg Config, deps Deps) (*Coordinator, error) {
	if deps.Caller == nil {
		return nil, fmt.Errorf("pipeline: collaborator caller is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("pipeline: enforcement ledger is required")
	}
	if deps.Audit == nil {
		deps.Audit = &extensions.NopAuditLogger{}
	}
	if deps.Hub == nil {
		deps.Hub = NewEventHub()
	}
	return &Coordinator{
		cfg:     cfg.withDefaults(),
		caller:  deps.Caller,
		ledger:  deps.Ledger,
		audit:   deps.Audit,
		metrics: deps.Metrics,
		hub:     deps.Hub,
		cases:   make(map[string]*datatypes.PipelineCase),
	}, nil
}

// Hub exposes the case event hub for the websocket feed.
func (co *Coordinator) Hub() *EventHub {
	return co.hub
}

// Case returns a snapshot of the case for the correlation id, if known.
func (co *Coordinator) Case(correlationID string) (datatypes.PipelineCase, bool) {
	co.mu.Lock()
	defer co.mu.Unlock()
	c, ok := co.cases[correlationID]
	if !ok {
		return datatypes.PipelineCase{}, false
	}
	return c.Clone(), true
}

// Process drives one alert through the full pipeline and returns the
// terminal case snapshot.
//
// Description:
//
//	Allocates a correlation id if none is supplied, deduplicates against
//	both the case registry and the enforcement ledger, then runs
//	investigate -> critique -> gate -> enforce. The returned case is
//	always in a terminal state. An error is returned only for rejected
//	input (invalid alert); every downstream failure is expressed as a
//	FAILED case with a disposition, never a bare error, so no failure
//	escapes the audit trail.
//
// Inputs:
//
//	ctx - Cancels in-flight hops. Once an enforcement claim is held the
//	      enforcer hop runs to completion regardless of ctx, so a
//	      cancelled task can never strand a claimed-but-unconfirmed id.
//	alert - The flagged transaction.
//	correlationID - Optional; generated when empty.
func (co *Coordinator) Process(ctx context.Context, alert datatypes.Alert, correlationID string) (datatypes.PipelineCase, error) {
	if err := alert.Validate(); err != nil {
		return datatypes.PipelineCase{}, fmt.Errorf("invalid alert: %w", err)
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	ctx, span := tracer.Start(ctx, "pipeline.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("vigil.correlation_id", correlationID),
		attribute.String("vigil.transaction_id", alert.TransactionID),
	)

	c, created := co.openCase(alert, correlationID)
	if !created {
		// Duplicate alert for a known case: the original run (or its
		// terminal record) answers for it. Never re-run the pipeline.
		slog.Info("Duplicate alert absorbed by case registry",
			"correlation_id", correlationID, "state", c.State)
		return c, nil
	}

	if co.metrics != nil {
		co.metrics.ActiveCases.Inc()
		defer co.metrics.ActiveCases.Dec()
	}
	co.auditEvent(ctx, "case.opened", correlationID, "success", map[string]any{
		"transaction_id": alert.TransactionID,
		"amount":         alert.Amount,
	})

	// A confirmed dispatch from an earlier process lifetime (durable
	// ledger) short-circuits before any collaborator is bothered.
	if claimed, err := co.ledger.IsClaimed(correlationID); err == nil && claimed {
		return co.resolve(ctx, correlationID, StateResolved, DispositionDuplicate, "duplicate"), nil
	}

	cf, ok := co.investigate(ctx, correlationID, alert)
	if !ok {
		return co.snapshot(correlationID), nil
	}

	verdict := co.critique(ctx, correlationID, cf)

	decision, disposition := Decide(cf, verdict, co.cfg.RiskThreshold)
	if decision == DecisionBenign {
		return co.resolve(ctx, correlationID, StateResolved, disposition, "benign"), nil
	}

	return co.enforce(ctx, correlationID, alert, verdict), nil
}

// openCase registers a new case, or returns the existing one when the
// correlation id is already known. The check-and-insert is atomic so
// concurrent duplicates cannot both create a case.
func (co *Coordinator) openCase(alert datatypes.Alert, correlationID string) (datatypes.PipelineCase, bool) {
	co.mu.Lock()
	defer co.mu.Unlock()

	if existing, ok := co.cases[correlationID]; ok {
		// The clone detaches the snapshot from the live case: the original
		// run keeps writing Attempts under co.mu while the duplicate's copy
		// is serialized outside it.
		return existing.Clone(), false
	}
	now := time.Now().UTC()
	c := &datatypes.PipelineCase{
		CorrelationID: correlationID,
		Alert:         alert,
		State:         StateNew.String(),
		Attempts:      make(map[string]int),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	co.cases[correlationID] = c
	return c.Clone(), true
}

// investigate runs the investigator hop. Returns the validated case file, or
// ok=false after moving the case to FAILED: enforcement must always be
// grounded in a structured case, so there is no fallback past this hop.
func (co *Coordinator) investigate(ctx context.Context, correlationID string, alert datatypes.Alert) (datatypes.CaseFile, bool) {
	co.transition(correlationID, StateInvestigating, "")

	payload, err := json.Marshal(alert)
	if err != nil {
		co.failCase(ctx, correlationID, DispositionInvalidInvestigation, err)
		return datatypes.CaseFile{}, false
	}

	raw, err := co.callHop(ctx, RoleInvestigator, correlationID, payload, co.cfg.InvestigatorTimeout)
	if err != nil {
		if errors.Is(err, collaborator.ErrDownstreamUnavailable) {
			co.failCase(ctx, correlationID, DispositionInvestigationFailed, err)
		} else {
			// Malformed investigator output is a collaborator bug,
			// not a transient condition; no retry.
			co.failCase(ctx, correlationID, DispositionInvalidInvestigation, err)
		}
		return datatypes.CaseFile{}, false
	}

	var cf datatypes.CaseFile
	if err := json.Unmarshal(raw, &cf); err == nil {
		err = cf.Validate()
	} else {
		err = fmt.Errorf("case file decode: %w", err)
	}
	if err != nil {
		co.hopFailure(RoleInvestigator, "invalid_response")
		co.failCase(ctx, correlationID, DispositionInvalidInvestigation, err)
		return datatypes.CaseFile{}, false
	}

	co.mu.Lock()
	if c, ok := co.cases[correlationID]; ok {
		copied := cf
		c.CaseFile = &copied
	}
	co.mu.Unlock()
	return cf, true
}

// critique runs the reviewer hop. The one hop whose failure does not halt
// the pipeline: any failure leaves the verdict absent and the gating
// decision proceeds under the fallback policy.
func (co *Coordinator) critique(ctx context.Context, correlationID string, cf datatypes.CaseFile) *datatypes.Verdict {
	co.transition(correlationID, StateCritiquing, "")

	payload, err := json.Marshal(cf)
	if err != nil {
		slog.Error("Failed to marshal case file for review", "correlation_id", correlationID, "error", err)
		return nil
	}

	raw, err := co.callHop(ctx, RoleReviewer, correlationID, payload, co.cfg.ReviewerTimeout)
	if err != nil {
		slog.Warn("Reviewer hop failed, proceeding without verdict",
			"correlation_id", correlationID, "error", err)
		return nil
	}

	var v datatypes.Verdict
	if err := json.Unmarshal(raw, &v); err == nil {
		err = v.Validate()
	}
	if err != nil {
		co.hopFailure(RoleReviewer, "invalid_response")
		slog.Warn("Reviewer returned an unusable verdict, proceeding without it",
			"correlation_id", correlationID, "error", err)
		return nil
	}

	co.mu.Lock()
	if c, ok := co.cases[correlationID]; ok {
		copied := v
		c.Verdict = &copied
	}
	co.mu.Unlock()
	return &v
}

// enforce runs claim -> dispatch -> confirm. The claim is taken immediately
// before the enforcer call and confirmed only after the call succeeds; a
// failed dispatch releases the claim so a legitimate retry can occur.
func (co *Coordinator) enforce(ctx context.Context, correlationID string, alert datatypes.Alert, verdict *datatypes.Verdict) datatypes.PipelineCase {
	co.transition(correlationID, StateEnforcing, "")

	claimed, err := co.ledger.TryClaim(correlationID)
	if err != nil {
		co.failCase(ctx, correlationID, DispositionLedgerUnavailable, err)
		return co.snapshot(correlationID)
	}
	if !claimed {
		if co.metrics != nil {
			co.metrics.ClaimRejectionsTotal.Inc()
		}
		return co.resolve(ctx, correlationID, StateResolved, DispositionDuplicate, "duplicate")
	}

	cmd := BuildCommand(alert, verdict, correlationID)
	payload, err := json.Marshal(cmd)
	if err != nil {
		_ = co.ledger.Release(correlationID)
		co.failCase(ctx, correlationID, DispositionEnforcementFailed, err)
		return co.snapshot(correlationID)
	}

	// Past the claim the dispatch must run to completion: a cancelled
	// parent context may not strand a claimed-but-unconfirmed id.
	dispatchCtx := context.WithoutCancel(ctx)
	raw, err := co.callHop(dispatchCtx, RoleEnforcer, correlationID, payload, co.cfg.EnforcerTimeout)
	if err == nil {
		err = enforcerAccepted(raw)
	}
	if err != nil {
		if rerr := co.ledger.Release(correlationID); rerr != nil {
			slog.Error("Failed to release enforcement claim",
				"correlation_id", correlationID, "error", rerr)
		}
		co.auditEvent(ctx, "enforcement.failed", correlationID, "failure", map[string]any{
			"target_account": cmd.TargetAccountID,
			"error":          err.Error(),
		})
		co.failCase(ctx, correlationID, DispositionEnforcementFailed, err)
		return co.snapshot(correlationID)
	}

	if err := co.ledger.Confirm(correlationID, cmd); err != nil {
		slog.Error("Enforcement dispatched but confirm failed",
			"correlation_id", correlationID, "error", err)
	}
	if co.metrics != nil {
		co.metrics.EnforcementsTotal.Inc()
	}
	co.auditEvent(ctx, "enforcement.dispatched", correlationID, "success", map[string]any{
		"action":         cmd.Action,
		"target_account": cmd.TargetAccountID,
		"reason":         cmd.Reason,
	})

	co.mu.Lock()
	if c, ok := co.cases[correlationID]; ok {
		copied := cmd
		c.Command = &copied
	}
	co.mu.Unlock()

	return co.resolve(ctx, correlationID, StateResolved, DispositionEnforced, "enforced")
}

// enforcerAccepted checks the enforcer's decision object for an explicit
// success status. A reachable enforcer that reports failure is a dispatch
// failure, not a success with a sad payload.
func enforcerAccepted(raw json.RawMessage) error {
	var status struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		return fmt.Errorf("enforcer status decode: %w", err)
	}
	if status.Status != "success" {
		return fmt.Errorf("enforcer reported %q: %s", status.Status, status.Message)
	}
	return nil
}

// callHop invokes one collaborator hop with the shared retry policy and
// records latency and attempt metrics.
func (co *Coordinator) callHop(ctx context.Context, role, correlationID string, payload []byte, timeout time.Duration) (json.RawMessage, error) {
	co.mu.Lock()
	if c, ok := co.cases[correlationID]; ok {
		c.Attempts[role]++
	}
	co.mu.Unlock()

	start := time.Now()
	raw, err := co.caller.Call(ctx, role, correlationID, payload, collaborator.CallConfig{
		Timeout:     timeout,
		MaxAttempts: co.cfg.MaxAttempts,
		Backoff:     co.cfg.Backoff,
	})
	if co.metrics != nil {
		co.metrics.HopDurationSeconds.WithLabelValues(role).Observe(time.Since(start).Seconds())
	}
	if err != nil && errors.Is(err, collaborator.ErrDownstreamUnavailable) {
		co.hopFailure(role, "unavailable")
	}
	return raw, err
}

func (co *Coordinator) hopFailure(role, kind string) {
	if co.metrics != nil {
		co.metrics.HopFailuresTotal.WithLabelValues(role, kind).Inc()
	}
}

// transition moves the case to the given state, publishing a case event.
// An illegal transition indicates a coordinator bug and is logged loudly
// rather than silently applied.
func (co *Coordinator) transition(correlationID string, to CaseState, disposition string) {
	co.mu.Lock()
	c, ok := co.cases[correlationID]
	if !ok {
		co.mu.Unlock()
		return
	}
	from := CaseState(c.State)
	if err := Transition(from, to); err != nil {
		co.mu.Unlock()
		slog.Error("Illegal case state transition",
			"correlation_id", correlationID, "from", from, "to", to)
		return
	}
	c.State = to.String()
	c.UpdatedAt = time.Now().UTC()
	if disposition != "" {
		c.Disposition = disposition
	}
	co.mu.Unlock()

	co.hub.Publish(CaseEvent{
		CorrelationID: correlationID,
		State:         to,
		Disposition:   disposition,
		At:            time.Now().UTC(),
	})
}

// resolve moves the case to a terminal state and emits metrics and audit.
func (co *Coordinator) resolve(ctx context.Context, correlationID string, state CaseState, disposition, outcome string) datatypes.PipelineCase {
	co.transition(correlationID, state, disposition)
	if co.metrics != nil {
		co.metrics.CasesTotal.WithLabelValues(state.String(), outcome).Inc()
	}
	co.auditEvent(ctx, "case.resolved", correlationID, "success", map[string]any{
		"disposition": disposition,
	})
	slog.Info("Case resolved",
		"correlation_id", correlationID, "disposition", disposition)
	return co.snapshot(correlationID)
}

// failCase moves the case to FAILED with a human-readable reason. The error
// is attached to the audit event so no failure is dropped without a trace.
func (co *Coordinator) failCase(ctx context.Context, correlationID, disposition string, cause error) {
	co.transition(correlationID, StateFailed, disposition)
	if co.metrics != nil {
		co.metrics.CasesTotal.WithLabelValues(StateFailed.String(), outcomeForDisposition(disposition)).Inc()
	}
	co.auditEvent(ctx, "case.failed", correlationID, "failure", map[string]any{
		"disposition": disposition,
		"error":       fmt.Sprint(cause),
	})
	slog.Error("Case failed",
		"correlation_id", correlationID, "disposition", disposition, "error", cause)
}

func outcomeForDisposition(disposition string) string {
	switch disposition {
	case DispositionInvestigationFailed, DispositionInvalidInvestigation:
		return "investigation_failed"
	case DispositionEnforcementFailed, DispositionLedgerUnavailable:
		return "enforcement_failed"
	default:
		return "failed"
	}
}

// snapshot returns a detached copy of the case under lock.
func (co *Coordinator) snapshot(correlationID string) datatypes.PipelineCase {
	co.mu.Lock()
	defer co.mu.Unlock()
	if c, ok := co.cases[correlationID]; ok {
		return c.Clone()
	}
	return datatypes.PipelineCase{CorrelationID: correlationID}
}

func (co *Coordinator) auditEvent(ctx context.Context, eventType, correlationID, outcome string, meta map[string]any) {
	ev := extensions.AuditEvent{
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Outcome:       outcome,
		Metadata:      meta,
	}
	if err := co.audit.Log(ctx, ev); err != nil {
		slog.Warn("Audit log failed", "event_type", eventType,
			"correlation_id", correlationID, "error", err)
	}
}
