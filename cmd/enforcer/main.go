// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command enforcer starts the vigil enforcer HTTP server.
//
// # Environment Variables
//
//   - ENFORCER_PORT: HTTP server port (default: 12340)
//   - GATEWAY_URL: Data gateway base URL (default: http://vigil-gateway:12350)
//   - LOG_DIR: Directory for JSON log files (default: stderr only)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/vigilops/vigil/pkg/logging"
	"github.com/vigilops/vigil/services/enforcer"
)

func main() {
	logger := logging.New(logging.Config{
		Service: "enforcer",
		JSON:    true,
		LogDir:  os.Getenv("LOG_DIR"),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg := enforcer.Config{
		Port:         getEnvInt("ENFORCER_PORT", 12340),
		GatewayURL:   os.Getenv("GATEWAY_URL"),
		OTelEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	slog.Info("Starting enforcer", "port", cfg.Port)

	svc, err := enforcer.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create enforcer: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("Enforcer error: %v", err)
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
