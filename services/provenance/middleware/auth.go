// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the provenance service.
//
// This package contains the write-path guards for POST /traces: shared-secret
// token authentication, per-client rate limiting, and request body size
// enforcement. The ordering of the guards is part of the endpoint contract:
// availability (503) is reported before authentication (401/403), which is
// reported before capacity limits (429/413).
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// TraceTokenHeader is the shared-secret header required on trace writes.
const TraceTokenHeader = "X-Trace-Token"

// TokenAuth creates a middleware enforcing the write shared secret.
//
// # Description
//
// An unconfigured secret is an availability condition, not a client error:
// the deployment has not enabled writes, so every write gets 503. A missing
// header is 401 and a mismatched one 403 so that callers can distinguish
// "I forgot the header" from "my secret is wrong". Comparison is
// constant-time.
//
// # Inputs
//
//   - secret: The configured shared secret. May be empty (writes disabled).
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func TokenAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "trace writes are not configured",
			})
			return
		}

		token := c.GetHeader(TraceTokenHeader)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing " + TraceTokenHeader + " header",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid trace token",
			})
			return
		}

		c.Next()
	}
}
