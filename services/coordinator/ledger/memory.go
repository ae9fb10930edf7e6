// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"sync"
	"time"

	"github.com/vigilops/vigil/services/coordinator/datatypes"
)

// entry tracks the claim lifecycle for one correlation id.
type entry struct {
	claimedAt time.Time
	confirmed bool
	command   datatypes.EnforcementCommand
}

// MemoryLedger is the in-memory Ledger for single-process deployments.
//
// Description:
//
//	A mutex-guarded map keyed by correlation id. Entries for confirmed
//	dispatches are kept for the life of the process so delayed duplicate
//	alerts short-circuit long after the originating case was disposed.
//
//	An optional claim lease bounds how long an unconfirmed claim may
//	linger: if the holder never reaches Confirm or Release (crashed task,
//	stuck enforcer), TryClaim treats the expired claim as released. A zero
//	lease disables expiry.
//
// Thread Safety: safe for concurrent use.
type MemoryLedger struct {
	mu    sync.Mutex
	items map[string]*entry
	lease time.Duration
	now   func() time.Time
}

// NewMemoryLedger creates an empty ledger with no claim lease.
func NewMemoryLedger() *MemoryLedger {
	return NewMemoryLedgerWithLease(0)
}

// NewMemoryLedgerWithLease creates a ledger whose unconfirmed claims expire
// after the given lease. Zero means claims never expire.
func NewMemoryLedgerWithLease(lease time.Duration) *MemoryLedger {
	return &MemoryLedger{
		items: make(map[string]*entry),
		lease: lease,
		now:   time.Now,
	}
}

// TryClaim implements Ledger.
func (m *MemoryLedger) TryClaim(correlationID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.items[correlationID]; ok {
		if e.confirmed {
			return false, nil
		}
		if m.lease <= 0 || m.now().Sub(e.claimedAt) < m.lease {
			return false, nil
		}
		// Lease expired: the previous holder never confirmed or released.
	}
	m.items[correlationID] = &entry{claimedAt: m.now()}
	return true, nil
}

// Confirm implements Ledger.
func (m *MemoryLedger) Confirm(correlationID string, cmd datatypes.EnforcementCommand) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[correlationID]
	if !ok {
		// Confirm without claim: record it anyway rather than lose the
		// dispatch fact.
		e = &entry{claimedAt: m.now()}
		m.items[correlationID] = e
	}
	e.confirmed = true
	e.command = cmd
	return nil
}

// Release implements Ledger.
func (m *MemoryLedger) Release(correlationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.items[correlationID]; ok && !e.confirmed {
		delete(m.items, correlationID)
	}
	return nil
}

// IsClaimed implements Ledger.
func (m *MemoryLedger) IsClaimed(correlationID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[correlationID]
	if !ok {
		return false, nil
	}
	if !e.confirmed && m.lease > 0 && m.now().Sub(e.claimedAt) >= m.lease {
		return false, nil
	}
	return true, nil
}

// Dispatched implements Ledger.
func (m *MemoryLedger) Dispatched(correlationID string) (*datatypes.EnforcementCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.items[correlationID]; ok && e.confirmed {
		cmd := e.command
		return &cmd, nil
	}
	return nil, nil
}

// Close implements Ledger. No resources to free.
func (m *MemoryLedger) Close() error {
	return nil
}
