// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the coordinator's HTTP handlers.
//
// Handlers are thin: bind, validate, delegate to the pipeline coordinator,
// translate the result to HTTP. All pipeline semantics live in the pipeline
// package.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vigilops/vigil/services/coordinator/datatypes"
	"github.com/vigilops/vigil/services/coordinator/pipeline"
)

// AlertRequest is the POST /v1/alerts body: the flagged transaction plus
// optional submission controls.
type AlertRequest struct {
	datatypes.Alert

	// CorrelationID lets a sensor retry an earlier submission without
	// risking a second enforcement. Generated when empty.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Async returns 202 immediately and processes in the background.
	// The case feed and GET /v1/cases report the outcome.
	Async bool `json:"async,omitempty"`
}

// AlertResponse is the body returned for an accepted alert.
type AlertResponse struct {
	CorrelationID string                  `json:"correlation_id"`
	State         string                  `json:"state"`
	Disposition   string                  `json:"disposition,omitempty"`
	Case          *datatypes.PipelineCase `json:"case,omitempty"`
}

// HandleAlert ingests one fraud alert.
//
// # Description
//
//	Synchronous submissions block until the case reaches a terminal state
//	and return the full case. Asynchronous submissions return 202 with the
//	correlation id; processing continues on a background goroutine that
//	survives the request context.
//
// # Outputs
//
//   - 200: Terminal case (sync).
//   - 202: Accepted, correlation id assigned (async).
//   - 400: Malformed or invalid alert.
func HandleAlert(co *pipeline.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AlertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := req.Alert.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		correlationID := req.CorrelationID
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		if req.Async {
			go func() {
				// Detached from the request: an impatient sensor must
				// not abort a case it already handed off.
				if _, err := co.Process(context.Background(), req.Alert, correlationID); err != nil {
					slog.Error("Background alert processing rejected input",
						"correlation_id", correlationID, "error", err)
				}
			}()
			c.JSON(http.StatusAccepted, AlertResponse{
				CorrelationID: correlationID,
				State:         "NEW",
			})
			return
		}

		result, err := co.Process(c.Request.Context(), req.Alert, correlationID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, AlertResponse{
			CorrelationID: result.CorrelationID,
			State:         result.State,
			Disposition:   result.Disposition,
			Case:          &result,
		})
	}
}
