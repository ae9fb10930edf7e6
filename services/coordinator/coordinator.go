// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package coordinator provides the fraud-response coordinator service.
//
// The coordinator is the stateful core of the pipeline: it ingests alerts,
// drives each one through the investigator, reviewer, and enforcer
// collaborators, and guarantees at-most-once enforcement per correlation id.
//
// # Deployment Integration
//
// The coordinator supports dependency injection via extensions.ServiceOptions,
// letting regulated deployments provide:
//   - AuthProvider: token validation against a real identity provider
//   - AuditLogger: compliance audit sinks
//
// # Usage
//
// Open source (no-op extensions):
//
//	cfg := coordinator.Config{Port: 12310}
//	svc, err := coordinator.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vigilops/vigil/pkg/extensions"
	"github.com/vigilops/vigil/pkg/telemetry"
	"github.com/vigilops/vigil/services/coordinator/collaborator"
	"github.com/vigilops/vigil/services/coordinator/ledger"
	"github.com/vigilops/vigil/services/coordinator/observability"
	"github.com/vigilops/vigil/services/coordinator/pipeline"
	"github.com/vigilops/vigil/services/coordinator/routes"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the coordinator service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine

	// Pipeline returns the pipeline coordinator, for embedding the
	// coordinator in a larger process (the transaction monitor does this
	// in single-binary deployments).
	Pipeline() *pipeline.Coordinator
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds coordinator configuration options.
//
// All fields are optional; New() applies production defaults, and the
// collaborator URLs default to the docker-compose service names.
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// RiskThreshold is the enforcement gate on the 0-10 risk scale.
	// Default: 7
	RiskThreshold float64

	// Collaborator endpoint URLs (the envelope POST endpoint).
	// Defaults: http://vigil-<role>:<port>/v1/execute.
	InvestigatorURL string
	ReviewerURL     string
	EnforcerURL     string

	// LedgerPath is the directory for the durable enforcement ledger.
	// Empty runs the in-memory ledger (single-process deployments where
	// at-most-once within the process lifetime is acceptable).
	LedgerPath string

	// Per-hop per-attempt deadlines and the shared retry policy.
	InvestigatorTimeout time.Duration
	ReviewerTimeout     time.Duration
	EnforcerTimeout     time.Duration
	MaxAttempts         int
	Backoff             time.Duration

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "vigil-otel-collector:4317"
	OTelEndpoint string

	// DisableMetrics skips Prometheus collector registration. Pipeline
	// metrics are on by default; embedding processes that construct more
	// than one coordinator set this because promauto collectors can only
	// be registered once per process.
	DisableMetrics bool

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// Thread-safe after construction; all fields are read-only after New().
type service struct {
	config        Config
	opts          extensions.ServiceOptions
	router        *gin.Engine
	pipeline      *pipeline.Coordinator
	ledger        ledger.Ledger
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a coordinator Service with the given configuration.
//
// # Description
//
//	Initializes tracing, metrics, the enforcement ledger (durable when
//	LedgerPath is set), the collaborator HTTP client, the pipeline
//	coordinator, and the HTTP router. If opts is nil, DefaultOptions()
//	is used (no-op auth and audit).
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//   - opts: Extension options. May be nil.
//
// # Outputs
//
//   - Service: Ready-to-run coordinator.
//   - error: Non-nil if initialization fails.
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if opts != nil {
		s.opts = *opts
	} else {
		s.opts = extensions.DefaultOptions()
	}

	cleanup, err := telemetry.InitTracer(s.config.OTelEndpoint, "coordinator-service")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	var metrics *observability.PipelineMetrics
	if !s.config.DisableMetrics {
		metrics = observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for the pipeline")
	}

	if err := s.initLedger(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize enforcement ledger: %w", err)
	}

	caller := collaborator.NewHTTPClient(map[string]string{
		pipeline.RoleInvestigator: s.config.InvestigatorURL,
		pipeline.RoleReviewer:     s.config.ReviewerURL,
		pipeline.RoleEnforcer:     s.config.EnforcerURL,
	})

	s.pipeline, err = pipeline.NewCoordinator(pipeline.Config{
		RiskThreshold:       s.config.RiskThreshold,
		InvestigatorTimeout: s.config.InvestigatorTimeout,
		ReviewerTimeout:     s.config.ReviewerTimeout,
		EnforcerTimeout:     s.config.EnforcerTimeout,
		MaxAttempts:         s.config.MaxAttempts,
		Backoff:             s.config.Backoff,
	}, pipeline.Deps{
		Caller:  caller,
		Ledger:  s.ledger,
		Audit:   s.opts.AuditLogger,
		Metrics: metrics,
	})
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting coordinator server",
		"port", s.config.Port,
		"risk_threshold", s.config.RiskThreshold,
		"durable_ledger", s.config.LedgerPath != "")

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Pipeline returns the pipeline coordinator.
func (s *service) Pipeline() *pipeline.Coordinator {
	return s.pipeline
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.RiskThreshold == 0 {
		cfg.RiskThreshold = 7
	}
	if cfg.InvestigatorURL == "" {
		cfg.InvestigatorURL = "http://vigil-investigator:12320/v1/execute"
	}
	if cfg.ReviewerURL == "" {
		cfg.ReviewerURL = "http://vigil-reviewer:12330/v1/execute"
	}
	if cfg.EnforcerURL == "" {
		cfg.EnforcerURL = "http://vigil-enforcer:12340/v1/execute"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "vigil-otel-collector:4317"
	}

	return cfg
}

// initLedger opens the enforcement ledger.
//
// LedgerPath set: durable Badger ledger whose confirmed dispatches survive
// restarts. Empty: in-memory ledger.
func (s *service) initLedger() error {
	if s.config.LedgerPath == "" {
		s.ledger = ledger.NewMemoryLedger()
		slog.Info("Using in-memory enforcement ledger")
		return nil
	}

	led, err := ledger.OpenBadgerLedger(s.config.LedgerPath)
	if err != nil {
		return err
	}
	s.ledger = led
	slog.Info("Using durable enforcement ledger", "path", s.config.LedgerPath)
	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("coordinator-service"))

	routes.SetupRoutes(s.router, s.pipeline, s.opts)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			slog.Warn("Enforcement ledger close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
