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
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianProvenance/services/provenance/middleware"
	"github.com/AleutianAI/AleutianProvenance/services/provenance/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testRouter(t *testing.T, cfg Config) *gin.Engine {
	t.Helper()
	store, err := storage.Open(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	router := gin.New()
	SetupRoutes(router, store, cfg, slog.Default())
	return router
}

const payload = `{
	"responseId": "r-1", "provenance": "Retrieved", "confidence": 0.5,
	"riskTier": "Low", "tradeoffCount": 0,
	"chainHash": "", "licenseContext": "", "modelVersion": "", "staleAfter": "",
	"citations": []
}`

func TestWriteEndpoint_AuthSequence(t *testing.T) {
	router := testRouter(t, Config{WriteToken: "s3cret", RateRPS: 100, RateBurst: 100})

	t.Run("no token is 401", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/traces", strings.NewReader(payload)))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong token is 403", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/traces", strings.NewReader(payload))
		req.Header.Set(middleware.TraceTokenHeader, "nope")
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("correct token writes, twice", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/traces", strings.NewReader(payload))
			req.Header.Set(middleware.TraceTokenHeader, "s3cret")
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})
}

func TestWriteEndpoint_MethodNotAllowed(t *testing.T) {
	router := testRouter(t, Config{WriteToken: "s3cret"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("PUT", "/traces", strings.NewReader(payload)))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestWriteEndpoint_NoTokenConfigured(t *testing.T) {
	router := testRouter(t, Config{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/traces", strings.NewReader(payload))
	req.Header.Set(middleware.TraceTokenHeader, "anything")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLightweightMode_NilStore(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, nil, Config{WriteToken: "s3cret"}, slog.Default())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/traces/r-1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/traces", strings.NewReader(payload))
	req.Header.Set(middleware.TraceTokenHeader, "s3cret")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealth(t *testing.T) {
	router := testRouter(t, Config{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
