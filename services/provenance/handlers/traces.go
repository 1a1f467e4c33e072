// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers provides the HTTP handlers for the provenance service.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianProvenance/pkg/logging"
	"github.com/AleutianAI/AleutianProvenance/services/provenance/datatypes"
	"github.com/AleutianAI/AleutianProvenance/services/provenance/middleware"
	"github.com/AleutianAI/AleutianProvenance/services/provenance/storage"
)

var tracesTracer = otel.Tracer("aleutian.provenance.handlers")

var (
	traceReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provenance_trace_reads_total",
		Help: "Total trace read requests by outcome",
	}, []string{"outcome"})

	traceWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provenance_trace_writes_total",
		Help: "Total trace write requests by outcome",
	}, []string{"outcome"})
)

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetTrace returns a handler serving GET /traces/:responseId.
//
// # Description
//
// Responds 503 when no store is configured, 404 for an unknown response ID,
// 500 on a retrieval failure, 410 with {message, metadata} for a record whose
// staleAfter has passed, and 200 with the raw record otherwise.
//
// Staleness is fail-open: a missing or unparsable staleAfter is treated as
// "not stale" and logged as a distinguishable event. 404 and 410 are
// semantically different to callers: the former means the record never
// existed, the latter that it exists but has expired.
func GetTrace(store storage.Store, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracesTracer.Start(c.Request.Context(), "GetTrace")
		defer span.End()

		if store == nil {
			traceReadsTotal.WithLabelValues("unavailable").Inc()
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trace store unavailable"})
			return
		}

		responseID := c.Param("responseId")
		md, err := store.Retrieve(ctx, responseID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			traceReadsTotal.WithLabelValues("not_found").Inc()
			c.JSON(http.StatusNotFound, gin.H{"error": "trace not found"})
			return
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("trace retrieval failed", "response_id", responseID, "error", err)
			traceReadsTotal.WithLabelValues("error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve trace"})
			return
		}

		if isStale(md, time.Now(), logger) {
			traceReadsTotal.WithLabelValues("stale").Inc()
			c.JSON(http.StatusGone, gin.H{
				"message":  "Trace is stale",
				"metadata": md,
			})
			return
		}

		traceReadsTotal.WithLabelValues("ok").Inc()
		c.JSON(http.StatusOK, md)
	}
}

// isStale judges read-time staleness.
//
// Absent or unparsable staleAfter values fail open to "not stale"; both
// branches are logged so silent degradation stays observable.
func isStale(md *datatypes.ResponseMetadata, now time.Time, logger *slog.Logger) bool {
	if md.StaleAfter == "" {
		return false
	}
	staleAfter, err := time.Parse(time.RFC3339, md.StaleAfter)
	if err != nil {
		logging.FailOpen(logger, "stale_after_unparsable",
			"response_id", md.ResponseID, "stale_after", md.StaleAfter)
		return false
	}
	return staleAfter.Before(now)
}

// PostTrace returns a handler serving POST /traces.
//
// # Description
//
// Runs behind the middleware chain (store availability, token auth, rate
// limit, body cap) and owns parsing and validation:
//
//   - unreadable or oversized body: 413 when the streaming guard tripped,
//     else 400 "invalid JSON"
//   - absent or wrong-typed responseId: 400 with the distinguished
//     "missing responseId" detail
//   - any other strict-validation failure: 400 with the first failing
//     field path and message
//   - success: idempotent upsert, 200 {ok: true, responseId}
func PostTrace(store storage.Store, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracesTracer.Start(c.Request.Context(), "PostTrace")
		defer span.End()

		writeID := uuid.NewString()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			if middleware.IsBodyTooLarge(err) {
				traceWritesTotal.WithLabelValues("too_large").Inc()
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
				return
			}
			traceWritesTotal.WithLabelValues("bad_request").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON", "details": err.Error()})
			return
		}

		// Pre-check responseId on the raw object so a wrong-typed value gets
		// the distinguished message instead of a generic decode error.
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			traceWritesTotal.WithLabelValues("bad_request").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON", "details": err.Error()})
			return
		}
		var responseID string
		if rawID, ok := raw["responseId"]; !ok || json.Unmarshal(rawID, &responseID) != nil || responseID == "" {
			traceWritesTotal.WithLabelValues("invalid").Inc()
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid payload",
				"details": datatypes.ErrMissingResponseID.Error(),
			})
			return
		}

		var md datatypes.ResponseMetadata
		if err := json.Unmarshal(body, &md); err != nil {
			traceWritesTotal.WithLabelValues("bad_request").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "details": err.Error()})
			return
		}

		if err := md.ValidateStrict(); err != nil {
			traceWritesTotal.WithLabelValues("invalid").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "details": err.Error()})
			return
		}

		if err := store.Upsert(ctx, &md); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("trace upsert failed",
				"write_id", writeID, "response_id", md.ResponseID, "error", err)
			traceWritesTotal.WithLabelValues("error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store trace"})
			return
		}

		logger.Info("trace stored",
			"write_id", writeID,
			"response_id", md.ResponseID,
			"client", middleware.ClientKey(c, false))
		traceWritesTotal.WithLabelValues("ok").Inc()
		c.JSON(http.StatusOK, gin.H{"ok": true, "responseId": md.ResponseID})
	}
}

// RequireStore rejects write requests with 503 when no store is configured.
// Runs first in the write chain so availability outranks authentication.
func RequireStore(store storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "trace store unavailable",
			})
			return
		}
		c.Next()
	}
}
