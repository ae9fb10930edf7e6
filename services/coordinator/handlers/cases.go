// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/vigilops/vigil/services/coordinator/pipeline"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// GetCase returns the case for a correlation id.
//
// 200 with the case snapshot, or 404 when the id is unknown.
func GetCase(co *pipeline.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.Param("correlationId")
		caseFile, ok := co.Case(correlationID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "unknown correlation id",
			})
			return
		}
		c.JSON(http.StatusOK, caseFile)
	}
}

// HandleCaseFeed streams case state transitions over a websocket.
//
// # Description
//
//	Subscribes the connection to the coordinator's event hub and forwards
//	every CaseEvent as JSON. Delivery is best-effort: a slow consumer
//	misses events rather than stalling the pipeline, and the case registry
//	stays authoritative.
//
//	The read loop exists only to observe the close handshake; inbound
//	frames are discarded.
func HandleCaseFeed(co *pipeline.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("Failed to upgrade case feed websocket", "error", err)
			return
		}
		defer ws.Close()
		slog.Info("Case feed client connected", "remote", ws.RemoteAddr().String())

		events, cancel := co.Hub().Subscribe()
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := ws.WriteJSON(ev); err != nil {
					slog.Info("Case feed client disconnected", "error", err.Error())
					return
				}
			case <-done:
				return
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
