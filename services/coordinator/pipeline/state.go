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

import "errors"

// CaseState represents a state in the pipeline case state machine.
//
// Valid transitions are enforced by Transition. Invalid transitions return
// ErrInvalidTransition.
type CaseState string

const (
	// StateNew is the initial state: alert received, correlation id
	// assigned or reused.
	StateNew CaseState = "NEW"

	// StateInvestigating covers the investigator hop.
	StateInvestigating CaseState = "INVESTIGATING"

	// StateCritiquing covers the reviewer hop. The only hop whose failure
	// does not halt the pipeline.
	StateCritiquing CaseState = "CRITIQUING"

	// StateEnforcing covers claim, enforcer dispatch, and confirm.
	StateEnforcing CaseState = "ENFORCING"

	// StateResolved is the terminal success state, reached on enforcement
	// confirm, benign disposition, or duplicate short-circuit.
	StateResolved CaseState = "RESOLVED"

	// StateFailed is the terminal failure state, always carrying a
	// human-readable disposition for audit.
	StateFailed CaseState = "FAILED"
)

// ErrInvalidTransition is returned for transitions outside the table below.
var ErrInvalidTransition = errors.New("invalid case state transition")

// validTransitions is the complete transition table.
var validTransitions = map[CaseState][]CaseState{
	StateNew:           {StateInvestigating, StateResolved, StateFailed},
	StateInvestigating: {StateCritiquing, StateFailed},
	StateCritiquing:    {StateEnforcing, StateResolved},
	StateEnforcing:     {StateResolved, StateFailed},
}

// String returns the state as a string.
func (s CaseState) String() string {
	return string(s)
}

// IsTerminal returns true for RESOLVED and FAILED. Terminal states are final;
// a case in a terminal state is never re-entered for the same correlation id.
func (s CaseState) IsTerminal() bool {
	return s == StateResolved || s == StateFailed
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to CaseState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to, returning ErrInvalidTransition when the
// move is not in the table.
func Transition(from, to CaseState) error {
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	return nil
}

// AllStates returns all valid case states.
func AllStates() []CaseState {
	return []CaseState{
		StateNew,
		StateInvestigating,
		StateCritiquing,
		StateEnforcing,
		StateResolved,
		StateFailed,
	}
}
