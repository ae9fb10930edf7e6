// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command reviewer starts the vigil reviewer HTTP server.
//
// # Environment Variables
//
//   - REVIEWER_PORT: HTTP server port (default: 12330)
//   - LLM_BACKEND_TYPE: Model backend - ollama, openai (default: ollama)
//   - OLLAMA_BASE_URL / OLLAMA_MODEL or OPENAI_API_KEY / OPENAI_MODEL
//   - LOG_DIR: Directory for JSON log files (default: stderr only)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/vigilops/vigil/pkg/logging"
	"github.com/vigilops/vigil/services/reviewer"
)

func main() {
	logger := logging.New(logging.Config{
		Service: "reviewer",
		JSON:    true,
		LogDir:  os.Getenv("LOG_DIR"),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg := reviewer.Config{
		Port:         getEnvInt("REVIEWER_PORT", 12330),
		LLMBackend:   os.Getenv("LLM_BACKEND_TYPE"),
		OTelEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	slog.Info("Starting reviewer",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
	)

	svc, err := reviewer.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create reviewer: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("Reviewer error: %v", err)
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
