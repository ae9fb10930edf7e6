// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command coordinator starts the vigil coordinator HTTP server.
//
// # Environment Variables
//
//   - COORDINATOR_PORT: HTTP server port (default: 12310)
//   - RISK_THRESHOLD: Enforcement gate on the 0-10 risk scale (default: 7)
//   - INVESTIGATOR_URL / REVIEWER_URL / ENFORCER_URL: Collaborator endpoints
//   - LEDGER_PATH: Directory for the durable enforcement ledger (empty: in-memory)
//   - INVESTIGATOR_TIMEOUT: Per-attempt investigator deadline, Go duration (default: 60s)
//   - REVIEWER_TIMEOUT: Per-attempt reviewer deadline, Go duration (default: 45s)
//   - ENFORCER_TIMEOUT: Per-attempt enforcer deadline, Go duration (default: 15s)
//   - MAX_ATTEMPTS: Per-hop retry ceiling (default: 3)
//   - BACKOFF: Base retry backoff, Go duration (default: 500ms)
//   - LOG_DIR: Directory for JSON log files (default: stderr only)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: vigil-otel-collector:4317)
//
// # Usage
//
//	go build -o coordinator ./cmd/coordinator
//	./coordinator
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/vigilops/vigil/pkg/logging"
	"github.com/vigilops/vigil/services/coordinator"
)

func main() {
	logger := logging.New(logging.Config{
		Service: "coordinator",
		JSON:    true,
		LogDir:  os.Getenv("LOG_DIR"),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg := coordinator.Config{
		Port:            getEnvInt("COORDINATOR_PORT", 12310),
		RiskThreshold:   getEnvFloat("RISK_THRESHOLD", 7),
		InvestigatorURL: os.Getenv("INVESTIGATOR_URL"),
		ReviewerURL:     os.Getenv("REVIEWER_URL"),
		EnforcerURL:     os.Getenv("ENFORCER_URL"),
		LedgerPath:      os.Getenv("LEDGER_PATH"),

		InvestigatorTimeout: getEnvDuration("INVESTIGATOR_TIMEOUT", 60*time.Second),
		ReviewerTimeout:     getEnvDuration("REVIEWER_TIMEOUT", 45*time.Second),
		EnforcerTimeout:     getEnvDuration("ENFORCER_TIMEOUT", 15*time.Second),
		MaxAttempts:         getEnvInt("MAX_ATTEMPTS", 3),
		Backoff:             getEnvDuration("BACKOFF", 500*time.Millisecond),

		OTelEndpoint: getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "vigil-otel-collector:4317"),
	}

	slog.Info("Starting coordinator",
		"port", cfg.Port,
		"risk_threshold", cfg.RiskThreshold,
		"ledger_path", cfg.LedgerPath,
	)

	// Default (no-op) extension options; regulated deployments pass
	// custom ServiceOptions here.
	svc, err := coordinator.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create coordinator: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("Coordinator error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as an int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		slog.Warn("Invalid integer environment variable, using default",
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
