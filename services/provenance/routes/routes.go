// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianProvenance/services/provenance/handlers"
	"github.com/AleutianAI/AleutianProvenance/services/provenance/middleware"
	"github.com/AleutianAI/AleutianProvenance/services/provenance/storage"
)

// Config carries the route-level settings for the trace endpoints.
type Config struct {
	// WriteToken is the shared secret for POST /traces.
	// Empty disables writes (503).
	WriteToken string

	// TrustProxy enables X-Forwarded-For as the rate-limit client key.
	TrustProxy bool

	// RateRPS and RateBurst configure the per-client write rate limit.
	RateRPS   float64
	RateBurst int

	// MaxBodyBytes caps write payload size. Zero uses the default.
	MaxBodyBytes int64
}

// SetupRoutes registers the trace endpoints on the router.
//
// The store may be nil (lightweight mode): routes stay registered and
// respond 503 so callers can tell "service down" from "endpoint missing".
func SetupRoutes(router *gin.Engine, store storage.Store, cfg Config, logger *slog.Logger) {
	// Wrong-method requests on known paths must get 405, not 404.
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	router.GET("/health", handlers.HealthCheck)

	router.GET("/traces/:responseId", handlers.GetTrace(store, logger))
	router.POST("/traces",
		handlers.RequireStore(store),
		middleware.TokenAuth(cfg.WriteToken),
		middleware.RateLimit(middleware.RateLimitConfig{
			RPS:        cfg.RateRPS,
			Burst:      cfg.RateBurst,
			TrustProxy: cfg.TrustProxy,
		}),
		middleware.BodyLimit(cfg.MaxBodyBytes),
		handlers.PostTrace(store, logger),
	)
}
