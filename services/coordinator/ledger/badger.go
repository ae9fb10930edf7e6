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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vigilops/vigil/services/coordinator/datatypes"
)

// claim statuses stored in Badger.
const (
	statusClaimed   = "claimed"
	statusConfirmed = "confirmed"
)

// record is the value stored per correlation id.
type record struct {
	Status  string                        `json:"status"`
	Command *datatypes.EnforcementCommand `json:"command,omitempty"`
}

// BadgerLedger is a Ledger backed by an embedded BadgerDB, for deployments
// that must not double-enforce across process restarts.
//
// Description:
//
//	Claims and confirmations are written with SyncWrites enabled, so a
//	confirmed dispatch survives a crash. Atomicity of TryClaim comes from
//	Badger's serializable transactions: two concurrent claimers conflict
//	and exactly one commit wins.
//
// Thread Safety: safe for concurrent use.
type BadgerLedger struct {
	db *badger.DB
}

// badgerSlog adapts slog to Badger's Logger interface.
type badgerSlog struct{}

func (badgerSlog) Errorf(f string, args ...interface{})   { slog.Error(fmt.Sprintf(f, args...)) }
func (badgerSlog) Warningf(f string, args ...interface{}) { slog.Warn(fmt.Sprintf(f, args...)) }
func (badgerSlog) Infof(f string, args ...interface{})    { slog.Debug(fmt.Sprintf(f, args...)) }
func (badgerSlog) Debugf(f string, args ...interface{})   { slog.Debug(fmt.Sprintf(f, args...)) }

// OpenBadgerLedger opens (creating if needed) a durable ledger at dir.
func OpenBadgerLedger(dir string) (*BadgerLedger, error) {
	if dir == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1).
		WithLogger(badgerSlog{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	slog.Info("Opened durable enforcement ledger", "path", dir)
	return &BadgerLedger{db: db}, nil
}

func ledgerKey(correlationID string) []byte {
	return []byte("claim/" + correlationID)
}

// TryClaim implements Ledger.
func (b *BadgerLedger) TryClaim(correlationID string) (bool, error) {
	claimed := false
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(ledgerKey(correlationID))
		if err == nil {
			return nil // already claimed or confirmed
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		val, err := json.Marshal(record{Status: statusClaimed})
		if err != nil {
			return err
		}
		if err := txn.Set(ledgerKey(correlationID), val); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		// A concurrent claimer won the race.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// Confirm implements Ledger.
func (b *BadgerLedger) Confirm(correlationID string, cmd datatypes.EnforcementCommand) error {
	val, err := json.Marshal(record{Status: statusConfirmed, Command: &cmd})
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(ledgerKey(correlationID), val)
	})
}

// Release implements Ledger.
func (b *BadgerLedger) Release(correlationID string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, correlationID)
		if err != nil || rec == nil {
			return err
		}
		if rec.Status == statusConfirmed {
			return nil
		}
		return txn.Delete(ledgerKey(correlationID))
	})
}

// IsClaimed implements Ledger.
func (b *BadgerLedger) IsClaimed(correlationID string) (bool, error) {
	var claimed bool
	err := b.db.View(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, correlationID)
		if err != nil {
			return err
		}
		claimed = rec != nil
		return nil
	})
	return claimed, err
}

// Dispatched implements Ledger.
func (b *BadgerLedger) Dispatched(correlationID string) (*datatypes.EnforcementCommand, error) {
	var cmd *datatypes.EnforcementCommand
	err := b.db.View(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, correlationID)
		if err != nil {
			return err
		}
		if rec != nil && rec.Status == statusConfirmed {
			cmd = rec.Command
		}
		return nil
	})
	return cmd, err
}

// Close implements Ledger.
func (b *BadgerLedger) Close() error {
	return b.db.Close()
}

func getRecord(txn *badger.Txn, correlationID string) (*record, error) {
	item, err := txn.Get(ledgerKey(correlationID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}
