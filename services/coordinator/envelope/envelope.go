// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package envelope implements the structured message envelope exchanged
// between the coordinator and its collaborators (investigator, reviewer,
// enforcer).
//
// An envelope carries a role, a correlation id, and an ordered sequence of
// typed payload parts. Producers are free to send the payload as one
// concatenated text part or split across several; the decoder preserves part
// order when joining, so both shapes decode to the same payload.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned when an envelope is structurally unusable:
// missing role, no parts, or unparseable JSON.
var ErrMalformed = errors.New("malformed envelope")

// PartTypeText is the only part type the pipeline currently exchanges.
// The Type field exists so richer part kinds can be added without a wire
// format change.
const PartTypeText = "text"

// Part is a single typed payload fragment.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Envelope is the request/response message exchanged between collaborators.
type Envelope struct {
	// Role names the collaborator the message is for or from, e.g.
	// "investigator", "reviewer", "enforcer", "coordinator".
	Role string `json:"role"`

	// CorrelationID binds the message to one alert's lifecycle. Propagated
	// unchanged through every hop.
	CorrelationID string `json:"correlation_id"`

	// Parts is the ordered payload. Must contain at least one part.
	Parts []Part `json:"parts"`
}

// New builds an envelope with the payload as a single text part.
func New(role, correlationID, payload string) Envelope {
	return Envelope{
		Role:          role,
		CorrelationID: correlationID,
		Parts:         []Part{{Type: PartTypeText, Text: payload}},
	}
}

// Encode serializes the envelope to JSON.
func Encode(e Envelope) ([]byte, error) {
	if e.Role == "" || len(e.Parts) == 0 {
		return nil, fmt.Errorf("%w: role and at least one part are required", ErrMalformed)
	}
	return json.Marshal(e)
}

// Decode parses raw bytes into an Envelope.
//
// Fails with ErrMalformed (wrapped) when the bytes are not valid JSON, the
// role is absent, or no parts are present. A missing correlation id is not a
// structural defect; the coordinator assigns one on ingress.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if e.Role == "" {
		return Envelope{}, fmt.Errorf("%w: missing role", ErrMalformed)
	}
	if len(e.Parts) == 0 {
		return Envelope{}, fmt.Errorf("%w: no payload parts", ErrMalformed)
	}
	return e, nil
}

// Payload concatenates the text of all parts in order.
//
// Collaborators built on streaming backends may deliver their reply as many
// small fragments; joining here means downstream code never cares how the
// payload was chunked.
func (e Envelope) Payload() string {
	if len(e.Parts) == 1 {
		return e.Parts[0].Text
	}
	var b strings.Builder
	for _, p := range e.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}
