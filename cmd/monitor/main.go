// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command monitor starts the vigil transaction monitor.
//
// # Environment Variables
//
//   - GATEWAY_URL: Data gateway base URL (default: http://vigil-gateway:12350)
//   - COORDINATOR_URL: Alert ingestion endpoint (default: http://vigil-coordinator:12310/v1/alerts)
//   - POLL_INTERVAL: Poll period, Go duration (default: 10s)
//   - FRAUD_THRESHOLD: Amount that triggers an alert (default: 1000)
//   - LOG_DIR: Directory for JSON log files (default: stderr only)
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/vigilops/vigil/pkg/logging"
	"github.com/vigilops/vigil/services/monitor"
)

func main() {
	logger := logging.New(logging.Config{
		Service: "monitor",
		JSON:    true,
		LogDir:  os.Getenv("LOG_DIR"),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg := monitor.Config{
		GatewayURL:      os.Getenv("GATEWAY_URL"),
		CoordinatorURL:  os.Getenv("COORDINATOR_URL"),
		PollInterval:    getEnvDuration("POLL_INTERVAL", 10*time.Second),
		AmountThreshold: getEnvFloat("FRAUD_THRESHOLD", 1000),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := monitor.New(cfg)
	if err := m.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Monitor error: %v", err)
	}
}

// getEnvDuration returns the environment variable as a duration or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		slog.Warn("Invalid duration environment variable, using default",
			"key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}

// getEnvFloat returns the environment variable as a float64 or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
		slog.Warn("Invalid float environment variable, using default",
			"key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}
