// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package investigator provides the investigation collaborator: it enriches
// a flagged transaction with account data from the gateway, asks the model
// for a risk assessment, and returns a structured case file.
package investigator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/vigilops/vigil/pkg/telemetry"
	gatewayclient "github.com/vigilops/vigil/services/gateway/client"
	"github.com/vigilops/vigil/services/llm"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Config holds investigator configuration options.
type Config struct {
	// Port is the HTTP server port. Default: 12320
	Port int

	// GatewayURL is the data gateway base URL.
	// Default: "http://vigil-gateway:12350"
	GatewayURL string

	// LLMBackend selects the model backend: "ollama" (default) or "openai".
	LLMBackend string

	// HistoryLimit caps the transaction history attached to the case file.
	// Default: 50
	HistoryLimit int

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	OTelEndpoint string

	// GinMode sets the Gin framework mode.
	GinMode string
}

// Service is the runnable investigator.
type Service struct {
	config        Config
	router        *gin.Engine
	gateway       *gatewayclient.Client
	model         llm.Client
	tracerCleanup func(context.Context)
}

// New creates the investigator service.
func New(cfg Config) (*Service, error) {
	if cfg.Port == 0 {
		cfg.Port = 12320
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = "http://vigil-gateway:12350"
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "vigil-otel-collector:4317"
	}

	s := &Service{config: cfg}

	cleanup, err := telemetry.InitTracer(cfg.OTelEndpoint, "investigator-service")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	s.model, err = llm.NewClient(cfg.LLMBackend)
	if err != nil {
		s.tracerCleanup(context.Background())
		return nil, fmt.Errorf("failed to initialize llm client: %w", err)
	}
	s.gateway = gatewayclient.New(cfg.GatewayURL)

	s.initRouter()
	return s, nil
}

// Run starts the HTTP server and blocks until shutdown or error.
func (s *Service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting investigator server", "port", s.config.Port)
	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *Service) Router() *gin.Engine {
	return s.router
}

func (s *Service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("investigator-service"))

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	s.router.POST("/v1/execute", s.handleExecute)
}

func (s *Service) cleanup() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
