// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command gateway starts the vigil data gateway HTTP server.
//
// # Environment Variables
//
//   - GATEWAY_PORT: HTTP server port (default: 12350)
//   - DATABASE_URL: Postgres connection string (required)
//   - LOG_DIR: Directory for JSON log files (default: stderr only)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/vigilops/vigil/pkg/logging"
	"github.com/vigilops/vigil/services/gateway"
)

func main() {
	logger := logging.New(logging.Config{
		Service: "gateway",
		JSON:    true,
		LogDir:  os.Getenv("LOG_DIR"),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg := gateway.Config{
		Port:         getEnvInt("GATEWAY_PORT", 12350),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		OTelEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	slog.Info("Starting gateway", "port", cfg.Port)

	svc, err := gateway.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("Gateway error: %v", err)
	}
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
