// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collaborator

import (
	"errors"
	"fmt"
)

// Sentinel errors for collaborator calls. The coordinator switches on these
// with errors.Is to apply per-hop policy; no failure kind is ever collapsed
// into a generic error string.
var (
	// ErrDownstreamUnavailable is returned after the retry ceiling is
	// exhausted on timeouts or transport failures.
	ErrDownstreamUnavailable = errors.New("downstream unavailable")

	// ErrInvalidResponse is returned when a collaborator replied but the
	// reply was structurally unusable: envelope decode failed, no JSON
	// object could be extracted, or the payload failed validation.
	// Never retried - malformed output is a collaborator bug, not a
	// transient condition.
	ErrInvalidResponse = errors.New("invalid collaborator response")

	// ErrUnknownRole is returned when no endpoint is configured for the
	// requested role.
	ErrUnknownRole = errors.New("unknown collaborator role")
)

// DownstreamError carries the detail behind ErrDownstreamUnavailable.
type DownstreamError struct {
	// Role is the collaborator that was unreachable.
	Role string

	// Attempts is how many attempts were made before giving up.
	Attempts int

	// Err is the last transport or timeout error observed.
	Err error
}

// Error implements the error interface.
func (e *DownstreamError) Error() string {
	return fmt.Sprintf("%s unavailable after %d attempts: %v", e.Role, e.Attempts, e.Err)
}

// Unwrap makes errors.Is(err, ErrDownstreamUnavailable) work.
func (e *DownstreamError) Unwrap() error {
	return ErrDownstreamUnavailable
}

// ResponseError carries the detail behind ErrInvalidResponse.
type ResponseError struct {
	// Role is the collaborator that produced the bad reply.
	Role string

	// Err is the decode, extraction, or validation error.
	Err error
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("invalid response from %s: %v", e.Role, e.Err)
}

// Unwrap makes errors.Is(err, ErrInvalidResponse) work.
func (e *ResponseError) Unwrap() error {
	return ErrInvalidResponse
}
