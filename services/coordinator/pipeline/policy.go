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
	"fmt"

	"github.com/vigilops/vigil/services/coordinator/datatypes"
)

// Decision is the outcome of the risk-gating policy.
type Decision int

const (
	// DecisionBenign resolves the case without enforcement.
	DecisionBenign Decision = iota

	// DecisionEnforce dispatches an enforcement command.
	DecisionEnforce
)

// Dispositions attached to benign resolutions.
const (
	dispositionBelowThreshold = "benign: risk below threshold"
	dispositionDissent        = "benign: reviewer dissent"
)

// fallbackReason is the reason recorded on a command synthesized without a
// reviewer verdict.
const fallbackReason = "risk threshold exceeded, review unavailable"

// Decide applies the risk-gating policy to a case file, an optional verdict,
// and the configured threshold.
//
// Description:
//
//	The reviewer is a false-positive filter, not a source of additional
//	risk. Its explicit dissent always overrides; its absence never
//	suppresses a high-confidence enforcement decision (fail-closed). A
//	risk score below the threshold never enforces, independent of the
//	verdict.
//
// Inputs:
//
//	cf - The investigator's case file.
//	v - The reviewer's verdict, nil when the review hop failed.
//	threshold - The configured gate value on the case file's risk scale.
//
// Outputs:
//
//	Decision - Enforce or benign.
//	string - The disposition to attach when the decision is benign.
func Decide(cf datatypes.CaseFile, v *datatypes.Verdict, threshold float64) (Decision, string) {
	if v != nil && !v.Concurs() {
		// Reviewer veto is authoritative regardless of score.
		return DecisionBenign, dispositionDissent
	}
	if cf.RiskScore < threshold {
		return DecisionBenign, dispositionBelowThreshold
	}
	return DecisionEnforce, ""
}

// BuildCommand constructs the enforcement command for a gated case.
//
// With a concurring verdict the reviewer's rationale becomes the recorded
// reason; without a verdict the command is synthesized deterministically from
// the case file under the fail-closed policy.
func BuildCommand(alert datatypes.Alert, v *datatypes.Verdict, correlationID string) datatypes.EnforcementCommand {
	reason := fallbackReason
	if v != nil {
		reason = fmt.Sprintf("reviewer concurred: %s", v.Rationale)
		if v.Rationale == "" {
			reason = "reviewer concurred"
		}
	}
	return datatypes.EnforcementCommand{
		Action:          datatypes.ActionLockAccount,
		TargetAccountID: alert.FromAccountID,
		Reason:          reason,
		CorrelationID:   correlationID,
	}
}
