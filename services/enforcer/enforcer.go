// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enforcer provides the enforcement collaborator: it executes
// validated enforcement commands against the data gateway.
//
// The enforcer is deliberately dumb. It does not reason about risk; it
// validates the command's shape and executes it. All judgment happens
// upstream of the coordinator's ledger claim.
package enforcer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vigilops/vigil/pkg/telemetry"
	"github.com/vigilops/vigil/services/coordinator/datatypes"
	"github.com/vigilops/vigil/services/coordinator/envelope"
	gatewayclient "github.com/vigilops/vigil/services/gateway/client"
	gwdatatypes "github.com/vigilops/vigil/services/gateway/datatypes"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("vigil.enforcer")

// Config holds enforcer configuration options.
type Config struct {
	// Port is the HTTP server port. Default: 12340
	Port int

	// GatewayURL is the data gateway base URL.
	// Default: "http://vigil-gateway:12350"
	GatewayURL string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	OTelEndpoint string

	// GinMode sets the Gin framework mode.
	GinMode string
}

// Service is the runnable enforcer.
type Service struct {
	config        Config
	router        *gin.Engine
	gateway       *gatewayclient.Client
	tracerCleanup func(context.Context)
}

// New creates the enforcer service.
func New(cfg Config) (*Service, error) {
	if cfg.Port == 0 {
		cfg.Port = 12340
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = "http://vigil-gateway:12350"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "vigil-otel-collector:4317"
	}

	s := &Service{config: cfg}

	cleanup, err := telemetry.InitTracer(cfg.OTelEndpoint, "enforcer-service")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup
	s.gateway = gatewayclient.New(cfg.GatewayURL)

	s.initRouter()
	return s, nil
}

// Run starts the HTTP server and blocks until shutdown or error.
func (s *Service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting enforcer server", "port", s.config.Port)
	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *Service) Router() *gin.Engine {
	return s.router
}

// handleExecute executes one enforcement command.
//
// # Description
//
//	Decodes the envelope, validates the command, and locks the target
//	account through the gateway. A gateway failure returns 502 so the
//	coordinator can retry under its claim. A command the enforcer will
//	not execute (unknown action, missing target) returns a status:error
//	decision in a 200 envelope; the coordinator treats that as a dispatch
//	failure without retrying.
func (s *Service) handleExecute(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "enforcer.Execute")
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

	var cmd datatypes.EnforcementCommand
	if err := json.Unmarshal([]byte(env.Payload()), &cmd); err != nil {
		s.reply(c, env.CorrelationID, "error", fmt.Sprintf("bad command payload: %v", err))
		return
	}

	if cmd.Action != datatypes.ActionLockAccount {
		s.reply(c, env.CorrelationID, "error", fmt.Sprintf("unsupported action %q", cmd.Action))
		return
	}
	if cmd.TargetAccountID == "" {
		s.reply(c, env.CorrelationID, "error", "missing target account")
		return
	}

	result, err := s.gateway.LockAccount(ctx, cmd.TargetAccountID, gwdatatypes.LockRequest{
		Reason:        cmd.Reason,
		CorrelationID: cmd.CorrelationID,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("gateway lock: %v", err)})
		return
	}

	msg := fmt.Sprintf("account %s locked", result.AccountID)
	if result.AlreadyLocked {
		msg = fmt.Sprintf("account %s was already locked", result.AccountID)
	}
	slog.Info("Enforcement executed",
		"correlation_id", env.CorrelationID,
		"account_id", result.AccountID,
		"already_locked", result.AlreadyLocked)
	s.reply(c, env.CorrelationID, "success", msg)
}

// reply sends the enforcer's decision object in a reply envelope.
func (s *Service) reply(c *gin.Context, correlationID, status, message string) {
	decision, _ := json.Marshal(map[string]string{
		"status":  status,
		"message": message,
	})
	body, err := envelope.Encode(envelope.New("enforcer", correlationID, string(decision)))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (s *Service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("enforcer-service"))

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
