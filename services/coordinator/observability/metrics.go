// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the coordinator.
//
// # Description
//
// Metrics cover the pipeline's operationally interesting surface:
//   - Case outcomes (resolved/failed, by disposition class)
//   - Collaborator hop latency and failures (by role and failure kind)
//   - Enforcement dispatches and claim rejections (duplicate absorption)
//   - Cases currently in flight
//
// Exposed via the /metrics endpoint; scrape with Prometheus.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "vigil"

const pipelineSubsystem = "pipeline"

// PipelineMetrics holds all Prometheus metrics for the coordinator pipeline.
type PipelineMetrics struct {
	// CasesTotal counts terminal cases.
	// Labels: state (RESOLVED, FAILED), outcome (enforced, benign,
	// duplicate, investigation_failed, enforcement_failed)
	CasesTotal *prometheus.CounterVec

	// ActiveCases tracks cases currently in flight.
	ActiveCases prometheus.Gauge

	// HopDurationSeconds measures collaborator hop latency.
	// Labels: role (investigator, reviewer, enforcer)
	HopDurationSeconds *prometheus.HistogramVec

	// HopFailuresTotal counts collaborator hop failures.
	// Labels: role, kind (unavailable, invalid_response)
	HopFailuresTotal *prometheus.CounterVec

	// EnforcementsTotal counts confirmed enforcement dispatches.
	EnforcementsTotal prometheus.Counter

	// ClaimRejectionsTotal counts TryClaim refusals - duplicate alerts
	// absorbed without double action.
	ClaimRejectionsTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance, initialized by InitMetrics().
var DefaultMetrics *PipelineMetrics

// InitMetrics initializes and registers the default metrics instance.
// Call once at startup; calling twice panics on duplicate registration.
func InitMetrics() *PipelineMetrics {
	DefaultMetrics = &PipelineMetrics{
		CasesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "cases_total",
			Help:      "Terminal pipeline cases by state and outcome.",
		}, []string{"state", "outcome"}),

		ActiveCases: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "active_cases",
			Help:      "Pipeline cases currently in flight.",
		}),

		HopDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "hop_duration_seconds",
			Help:      "Collaborator hop latency by role.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"role"}),

		HopFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "hop_failures_total",
			Help:      "Collaborator hop failures by role and failure kind.",
		}, []string{"role", "kind"}),

		EnforcementsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "enforcements_total",
			Help:      "Confirmed enforcement command dispatches.",
		}),

		ClaimRejectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "claim_rejections_total",
			Help:      "Enforcement claims refused because the id was already claimed.",
		}),
	}
	return DefaultMetrics
}
