// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package coordinator

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Configuration Tests
// =============================================================================

func TestApplyConfigDefaults(t *testing.T) {
	cfg := applyConfigDefaults(Config{})

	assert.Equal(t, 12310, cfg.Port)
	assert.Equal(t, float64(7), cfg.RiskThreshold)
	assert.Equal(t, "http://vigil-investigator:12320/v1/execute", cfg.InvestigatorURL)
	assert.Equal(t, "vigil-otel-collector:4317", cfg.OTelEndpoint)
	assert.False(t, cfg.DisableMetrics, "metrics are on by default")
}

func TestApplyConfigDefaults_KeepsMetricsOptOut(t *testing.T) {
	cfg := applyConfigDefaults(Config{DisableMetrics: true})
	assert.True(t, cfg.DisableMetrics)
}

// TestNew_MetricsOptOutAllowsMultipleInstances constructs two coordinators in
// one process with metrics disabled. Promauto collectors can only be
// registered once per process, so the second New panics if the opt-out is
// not honored.
func TestNew_MetricsOptOutAllowsMultipleInstances(t *testing.T) {
	for i := 0; i < 2; i++ {
		svc, err := New(Config{
			DisableMetrics: true,
			GinMode:        gin.TestMode,
		}, nil)
		require.NoError(t, err)
		require.NotNil(t, svc.Router())
		require.NotNil(t, svc.Pipeline())
	}
}
