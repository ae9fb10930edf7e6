// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package monitor provides the transaction monitor: the sensor that polls
// the gateway for new transactions and raises alerts to the coordinator.
//
// Alerting is deliberately crude (an amount threshold). The monitor's only
// duty is recall; precision is the pipeline's job.
package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	gatewayclient "github.com/vigilops/vigil/services/gateway/client"
	"github.com/vigilops/vigil/services/gateway/datatypes"
)

// Config holds monitor configuration options.
type Config struct {
	// GatewayURL is the data gateway base URL.
	// Default: "http://vigil-gateway:12350"
	GatewayURL string

	// CoordinatorURL is the coordinator's alert ingestion endpoint.
	// Default: "http://vigil-coordinator:12310/v1/alerts"
	CoordinatorURL string

	// PollInterval is how often the monitor polls for new transactions.
	// Default: 10s
	PollInterval time.Duration

	// AmountThreshold flags transactions at or above this amount.
	// Default: 1000
	AmountThreshold float64

	// Lookback bounds the first poll after a cold start.
	// Default: 1h
	Lookback time.Duration
}

// Monitor polls for transactions and submits alerts.
type Monitor struct {
	config     Config
	gateway    *gatewayclient.Client
	httpClient *http.Client

	// watermark is the timestamp of the newest transaction seen.
	watermark time.Time
}

// New creates a Monitor.
func New(cfg Config) *Monitor {
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = "http://vigil-gateway:12350"
	}
	if cfg.CoordinatorURL == "" {
		cfg.CoordinatorURL = "http://vigil-coordinator:12310/v1/alerts"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.AmountThreshold <= 0 {
		cfg.AmountThreshold = 1000
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = time.Hour
	}
	return &Monitor{
		config:     cfg,
		gateway:    gatewayclient.New(cfg.GatewayURL),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		watermark:  time.Now().Add(-cfg.Lookback),
	}
}

// Run polls until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("Starting transaction monitor",
		"poll_interval", m.config.PollInterval,
		"amount_threshold", m.config.AmountThreshold)

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Transaction monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := m.poll(ctx); err != nil {
				slog.Warn("Poll cycle failed", "error", err)
			}
		}
	}
}

// poll fetches transactions past the watermark and alerts on suspicious ones.
func (m *Monitor) poll(ctx context.Context) error {
	txns, err := m.gateway.NewTransactions(ctx, m.watermark, 200)
	if err != nil {
		return fmt.Errorf("fetch new transactions: %w", err)
	}

	for _, txn := range txns {
		if txn.Timestamp.After(m.watermark) {
			m.watermark = txn.Timestamp
		}
		if txn.Amount < m.config.AmountThreshold {
			continue
		}
		if err := m.submitAlert(ctx, txn); err != nil {
			slog.Error("Failed to submit alert",
				"transaction_id", txn.TransactionID, "error", err)
			// Keep going; the deterministic correlation id makes a
			// later resubmission safe.
		}
	}
	return nil
}

// submitAlert raises one alert to the coordinator.
//
// The correlation id is derived from the transaction id (UUIDv5), so
// resubmitting the same transaction can never cause a second enforcement.
func (m *Monitor) submitAlert(ctx context.Context, txn datatypes.Transaction) error {
	correlationID := uuid.NewSHA1(uuid.NameSpaceOID, []byte("vigil-txn-"+txn.TransactionID)).String()

	body, err := json.Marshal(map[string]any{
		"transaction_id":  txn.TransactionID,
		"from_account_id": txn.FromAccountID,
		"to_account_id":   txn.ToAccountID,
		"amount":          txn.Amount,
		"timestamp":       txn.Timestamp,
		"reason":          fmt.Sprintf("amount %.2f at or above threshold %.2f", txn.Amount, m.config.AmountThreshold),
		"correlation_id":  correlationID,
		"async":           true,
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.CoordinatorURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("coordinator returned status %d: %s", resp.StatusCode, raw)
	}

	slog.Info("Alert submitted",
		"transaction_id", txn.TransactionID,
		"correlation_id", correlationID,
		"amount", txn.Amount)
	return nil
}
