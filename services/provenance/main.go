// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command provenance starts the trace record service.
//
// The service stores response provenance metadata in an embedded Badger
// database and serves it back over HTTP:
//
//	GET  /health
//	GET  /traces/:responseId     read one trace record (410 when stale)
//	POST /traces                 upsert a record (token, rate and size gated)
//
// Usage:
//
//	TRACE_DB_PATH=/data/traces TRACE_WRITE_TOKEN=secret go run ./services/provenance
//
// Example requests:
//
//	curl http://localhost:12230/traces/resp-01HXYZ
//
//	curl -X POST http://localhost:12230/traces \
//	  -H "Content-Type: application/json" \
//	  -H "X-Trace-Token: secret" \
//	  -d '{"responseId":"resp-01HXYZ","provenance":"rag","confidence":0.9,"riskTier":"low"}'
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianProvenance/services/provenance/routes"
	"github.com/AleutianAI/AleutianProvenance/services/provenance/storage"
)

func main() {
	port := os.Getenv("PROVENANCE_PORT")
	if port == "" {
		port = "12230"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var store storage.Store
	dbPath := os.Getenv("TRACE_DB_PATH")
	if dbPath == "" {
		slog.Info("TRACE_DB_PATH not set. Running in lightweight mode (trace endpoints return 503).")
	} else {
		badgerStore, err := storage.Open(storage.DefaultConfig(dbPath))
		if err != nil {
			log.Fatalf("FATAL: Could not open the trace store at %s: %v", dbPath, err)
		}
		defer badgerStore.Close()
		store = badgerStore
		slog.Info("Trace store opened", "path", dbPath)
	}

	writeToken := os.Getenv("TRACE_WRITE_TOKEN")
	if writeToken == "" {
		slog.Warn("TRACE_WRITE_TOKEN is not set. Trace writes are disabled (503).")
	}

	cfg := routes.Config{
		WriteToken:   writeToken,
		TrustProxy:   os.Getenv("TRACE_TRUST_PROXY") == "true",
		RateRPS:      envFloat("TRACE_RATE_RPS", 5),
		RateBurst:    envInt("TRACE_RATE_BURST", 10),
		MaxBodyBytes: int64(envInt("TRACE_MAX_BODY_BYTES", 0)),
	}

	router := gin.Default()
	routes.SetupRoutes(router, store, cfg, logger)

	log.Println("Starting the provenance server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		slog.Warn("Invalid value, using default", "env", key, "value", raw)
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		slog.Warn("Invalid value, using default", "env", key, "value", raw)
		return fallback
	}
	return v
}
