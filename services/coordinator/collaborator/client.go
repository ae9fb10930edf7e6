// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package collaborator provides the uniform async call wrapper the
// coordinator uses to invoke its downstream roles (investigator, reviewer,
// enforcer).
//
// Description:
//
//	Every hop goes through Caller.Call, which applies the per-attempt
//	timeout, bounded retry with growing backoff, envelope decoding, and
//	sanitizer extraction. The coordinator always receives a typed result:
//	either the extracted JSON decision object or one of the sentinel
//	failures in errors.go. Retry policy lives here and nowhere else.
package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vigilops/vigil/services/coordinator/envelope"
	"github.com/vigilops/vigil/services/coordinator/sanitize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("vigil.coordinator.collaborator")

// CallConfig bounds one collaborator call.
type CallConfig struct {
	// Timeout is the per-attempt deadline.
	Timeout time.Duration

	// MaxAttempts is the retry ceiling, counting the first attempt.
	MaxAttempts int

	// Backoff is the delay before the second attempt; it grows linearly
	// with the attempt number (backoff, 2*backoff, ...).
	Backoff time.Duration
}

// normalized fills zero fields with safe defaults.
func (c CallConfig) normalized() CallConfig {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.Backoff < 0 {
		c.Backoff = 0
	}
	return c
}

// Caller invokes a downstream role with bounded latency and bounded retry.
//
// Implementations must return the extracted decision object or an error
// wrapping ErrDownstreamUnavailable, ErrInvalidResponse, or ErrUnknownRole.
// Context cancellation is honored between and during attempts.
type Caller interface {
	Call(ctx context.Context, role, correlationID string, payload []byte, cfg CallConfig) (json.RawMessage, error)
}

// HTTPClient is the production Caller. Each role maps to one HTTP endpoint
// accepting an envelope POST and replying with an envelope whose payload
// contains the role's decision object, possibly wrapped in prose.
//
// Thread Safety: safe for concurrent use; the endpoint map is read-only
// after construction.
type HTTPClient struct {
	endpoints map[string]string
	client    *http.Client
	sleep     func(context.Context, time.Duration) error
}

// NewHTTPClient builds a client from a role -> URL map.
//
// The http.Client carries no timeout of its own; per-attempt deadlines come
// from CallConfig so callers control latency per hop.
func NewHTTPClient(endpoints map[string]string) *HTTPClient {
	eps := make(map[string]string, len(endpoints))
	for role, url := range endpoints {
		eps[role] = url
	}
	return &HTTPClient{
		endpoints: eps,
		client:    &http.Client{},
		sleep:     sleepCtx,
	}
}

// Call implements Caller.
//
// Description:
//
//	Encodes the payload into an envelope for the role, POSTs it, and
//	decodes + sanitizes the reply. Timeouts and transport failures
//	(including 5xx statuses) are retried up to cfg.MaxAttempts with
//	growing backoff; a reply that decodes or extracts badly is returned
//	as ErrInvalidResponse immediately, since retrying a malformed-response
//	producer rarely helps and risks duplicate side effects remotely.
//
// Outputs:
//
//	json.RawMessage - The decision object extracted from the reply.
//	error - Wraps ErrUnknownRole, ErrDownstreamUnavailable, or
//	        ErrInvalidResponse.
func (h *HTTPClient) Call(ctx context.Context, role, correlationID string, payload []byte, cfg CallConfig) (json.RawMessage, error) {
	url, ok := h.endpoints[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	cfg = cfg.normalized()

	ctx, span := tracer.Start(ctx, "collaborator.Call")
	defer span.End()
	span.SetAttributes(
		attribute.String("vigil.role", role),
		attribute.String("vigil.correlation_id", correlationID),
		attribute.Int("vigil.max_attempts", cfg.MaxAttempts),
	)

	body, err := envelope.Encode(envelope.New(role, correlationID, string(payload)))
	if err != nil {
		// Only possible with an empty role, which the map lookup rules out.
		return nil, fmt.Errorf("encode request envelope: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * cfg.Backoff
			slog.Warn("Retrying collaborator call",
				"role", role,
				"correlation_id", correlationID,
				"attempt", attempt,
				"backoff", delay)
			if err := h.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		raw, transient, err := h.attempt(ctx, url, body, cfg.Timeout)
		if err == nil {
			reply, decodeErr := decodeReply(raw)
			if decodeErr != nil {
				span.RecordError(decodeErr)
				span.SetStatus(codes.Error, decodeErr.Error())
				return nil, &ResponseError{Role: role, Err: decodeErr}
			}
			span.SetAttributes(attribute.Int("vigil.attempts", attempt))
			return reply, nil
		}
		if !transient {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, &ResponseError{Role: role, Err: err}
		}
		lastErr = err
		slog.Warn("Collaborator call attempt failed",
			"role", role,
			"correlation_id", correlationID,
			"attempt", attempt,
			"error", err)
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "downstream unavailable")
	return nil, &DownstreamError{Role: role, Attempts: cfg.MaxAttempts, Err: lastErr}
}

// attempt performs one HTTP round trip. The bool reports whether the failure
// is transient (retryable).
func (h *HTTPClient) attempt(ctx context.Context, url string, body []byte, timeout time.Duration) ([]byte, bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		// Timeouts and connection errors surface here.
		return nil, true, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(raw, 200))
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(raw, 200))
	}
	return raw, false, nil
}

// decodeReply runs the envelope codec and the sanitizer over a raw reply.
func decodeReply(raw []byte) (json.RawMessage, error) {
	env, err := envelope.Decode(raw)
	if err != nil {
		return nil, err
	}
	return sanitize.ExtractObject(env.Payload())
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
