// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vigilops/vigil/pkg/extensions"
	"github.com/vigilops/vigil/services/coordinator/handlers"
	"github.com/vigilops/vigil/services/coordinator/middleware"
	"github.com/vigilops/vigil/services/coordinator/pipeline"
)

// SetupRoutes registers the coordinator's HTTP surface.
func SetupRoutes(router *gin.Engine, co *pipeline.Coordinator, opts extensions.ServiceOptions) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(opts.AuthProvider))
	{
		v1.POST("/alerts", handlers.HandleAlert(co))
		v1.GET("/cases/:correlationId", handlers.GetCase(co))
		v1.GET("/cases/ws", handlers.HandleCaseFeed(co))
	}
}
