// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions defines injection points for deployment-specific
// functionality.
//
// The open source coordinator runs with no-op defaults: any bearer token is
// accepted and audit events are discarded. Regulated deployments inject real
// implementations (identity provider validation, compliance audit sinks)
// without forking the coordinator.
package extensions

import (
	"context"
	"errors"
	"time"
)

// ErrUnauthorized is returned by AuthProvider implementations when a token
// is invalid or expired. The HTTP layer maps it to 401.
var ErrUnauthorized = errors.New("unauthorized")

// AuditEvent records a security-relevant pipeline event.
//
// Enforcement dispatches, enforcement failures, and terminal case outcomes
// are always audited; an event is never dropped silently once the pipeline
// has produced it.
type AuditEvent struct {
	// EventType categorizes the event, format "category.action":
	// "case.opened", "case.resolved", "case.failed",
	// "enforcement.dispatched", "enforcement.failed".
	EventType string

	// Timestamp is when the event occurred (UTC). Implementations set it
	// to time.Now().UTC() if zero.
	Timestamp time.Time

	// CorrelationID binds the event to one alert's lifecycle.
	CorrelationID string

	// Outcome is "success", "failure", or "blocked".
	Outcome string

	// Metadata holds event-specific detail (target account, disposition,
	// risk score, error text).
	Metadata map[string]any
}

// AuditLogger records audit events.
//
// Implementations must be safe for concurrent use and should buffer
// internally; the pipeline calls Log on its hot path.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
}

// AuthInfo is the identity attached to an authenticated request.
type AuthInfo struct {
	// UserID is the unique identifier for the caller. Never empty.
	UserID string

	// Roles contains role memberships, e.g. "operator", "auditor".
	Roles []string
}

// AuthProvider validates authentication tokens on inbound requests.
type AuthProvider interface {
	// Validate checks the token and returns the caller's identity, or an
	// error if the token is invalid.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// ServiceOptions bundles the injectable implementations.
type ServiceOptions struct {
	// AuthProvider validates inbound tokens.
	// Default: NopAuthProvider (accepts everything as local-operator).
	AuthProvider AuthProvider

	// AuditLogger records pipeline audit events.
	// Default: NopAuditLogger (discards).
	AuditLogger AuditLogger
}

// DefaultOptions returns ServiceOptions with no-op defaults, as used by the
// open source deployment.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider: &NopAuthProvider{},
		AuditLogger:  &NopAuditLogger{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// NopAuditLogger discards all events.
type NopAuditLogger struct{}

// Log discards the event without recording it.
func (l *NopAuditLogger) Log(_ context.Context, _ AuditEvent) error {
	return nil
}

// NopAuthProvider accepts any token.
type NopAuthProvider struct{}

// Validate always returns a local operator identity. Intentional for
// single-operator deployments behind a trusted network boundary.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-operator",
		Roles:  []string{"operator"},
	}, nil
}
