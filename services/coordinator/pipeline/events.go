// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"sync"
	"time"
)

// CaseEvent is one state transition, published to subscribers (the websocket
// case feed) as it happens.
type CaseEvent struct {
	CorrelationID string    `json:"correlation_id"`
	State         CaseState `json:"state"`
	Disposition   string    `json:"disposition,omitempty"`
	At            time.Time `json:"at"`
}

// EventHub fans case events out to subscribers.
//
// Slow subscribers are skipped rather than blocking the pipeline: delivery
// is best-effort, the case registry remains the source of truth.
//
// Thread Safety: safe for concurrent use.
type EventHub struct {
	mu   sync.Mutex
	subs map[int]chan CaseEvent
	next int
}

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[int]chan CaseEvent)}
}

// Subscribe registers a subscriber. The returned cancel func must be called
// to release the subscription; the channel is closed by cancel.
func (h *EventHub) Subscribe() (<-chan CaseEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan CaseEvent, 16)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that has buffer room.
func (h *EventHub) Publish(ev CaseEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
