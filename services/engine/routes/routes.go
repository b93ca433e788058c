// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the engine's HTTP surface onto a Gin router.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blueprint-sim/blueprint/pkg/extensions"
	"github.com/blueprint-sim/blueprint/services/engine/handlers"
	"github.com/blueprint-sim/blueprint/services/engine/middleware"
)

// SetupRoutes registers all engine endpoints.
//
// Health and metrics are unauthenticated; everything under /v1 passes
// through the auth middleware (a no-op for local play).
func SetupRoutes(router *gin.Engine, deps handlers.Deps, auth extensions.AuthProvider) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(auth))
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", handlers.CreateSession(deps))
			sessions.GET("/:id", handlers.GetSession(deps))
			sessions.DELETE("/:id", handlers.DeleteSession(deps))
			sessions.POST("/:id/mutations", handlers.PostMutation(deps))
			sessions.GET("/:id/ws", handlers.SessionWebsocket(deps))
		}
	}
}
