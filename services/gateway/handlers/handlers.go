// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gateway's HTTP handlers.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vigilops/vigil/services/gateway/datatypes"
	"github.com/vigilops/vigil/services/gateway/store"
)

// GetUser returns one account holder.
func GetUser(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.GetUser(c.Request.Context(), c.Param("accountId"))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// GetTransactionHistory returns an account's recent transactions.
// Query param "limit" caps the result, default 50.
func GetTransactionHistory(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		txns, err := s.TransactionHistory(c.Request.Context(), c.Param("accountId"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": txns})
	}
}

// GetNewTransactions returns transactions after the "after" timestamp
// (RFC 3339), oldest first. The monitor polls this.
func GetNewTransactions(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		afterParam := c.Query("after")
		after := time.Time{}
		if afterParam != "" {
			parsed, err := time.Parse(time.RFC3339, afterParam)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "after must be RFC 3339"})
				return
			}
			after = parsed
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))

		txns, err := s.NewTransactions(c.Request.Context(), after, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": txns})
	}
}

// LockAccount locks an account. Idempotent.
func LockAccount(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.LockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := s.LockAccount(c.Request.Context(), c.Param("accountId"), req)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
