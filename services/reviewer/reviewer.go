// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reviewer provides the adversarial review collaborator: it
// challenges the investigator's case file and returns a concur/dissent
// verdict.
//
// The reviewer holds the false-positive budget. Its job is to find the
// innocent explanation the investigator missed; an unsupported risk score
// should draw a dissent.
package reviewer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vigilops/vigil/pkg/telemetry"
	"github.com/vigilops/vigil/services/coordinator/envelope"
	"github.com/vigilops/vigil/services/llm"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("vigil.reviewer")

const systemPrompt = `You are an adversarial fraud review specialist. A fraud
analyst has produced a case file recommending possible enforcement. Your job
is to challenge it: look for innocent explanations, weak justifications, and
risk scores unsupported by the evidence. Concur only if the case genuinely
holds up.

Respond with ONLY a JSON object, no other text:
{"verdict": "concur" or "dissent", "rationale": "<one or two sentences>"}`

// Config holds reviewer configuration options.
type Config struct {
	// Port is the HTTP server port. Default: 12330
	Port int

	// LLMBackend selects the model backend: "ollama" (default) or "openai".
	LLMBackend string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	OTelEndpoint string

	// GinMode sets the Gin framework mode.
	GinMode string
}

// Service is the runnable reviewer.
type Service struct {
	config        Config
	router        *gin.Engine
	model         llm.Client
	tracerCleanup func(context.Context)
}

// New creates the reviewer service.
func New(cfg Config) (*Service, error) {
	if cfg.Port == 0 {
		cfg.Port = 12330
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "vigil-otel-collector:4317"
	}

	s := &Service{config: cfg}

	cleanup, err := telemetry.InitTracer(cfg.OTelEndpoint, "reviewer-service")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	s.model, err = llm.NewClient(cfg.LLMBackend)
	if err != nil {
		s.tracerCleanup(context.Background())
		return nil, fmt.Errorf("failed to initialize llm client: %w", err)
	}

	s.initRouter()
	return s, nil
}

// Run starts the HTTP server and blocks until shutdown or error.
func (s *Service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting reviewer server", "port", s.config.Port)
	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *Service) Router() *gin.Engine {
	return s.router
}

// handleExecute runs one review.
//
// The model's reply is passed through verbatim in the reply envelope: the
// coordinator's sanitizer owns extraction, and a reply it cannot use is
// treated there as an absent verdict.
func (s *Service) handleExecute(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "reviewer.Execute")
	defer span.End()

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	env, err := envelope.Decode(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(attribute.String("vigil.correlation_id", env.CorrelationID))

	prompt := fmt.Sprintf("Case file under review:\n%s", env.Payload())

	raw, err := s.model.Generate(ctx, systemPrompt, prompt, llm.GenerationParams{})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("model generation: %v", err)})
		return
	}

	reply, err := envelope.Encode(envelope.New("reviewer", env.CorrelationID, raw))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", reply)
}

func (s *Service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("reviewer-service"))

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
