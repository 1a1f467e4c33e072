// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultMaxBodyBytes caps trace write payloads. Trace records are a few KB
// of metadata; anything near this limit is malformed or hostile.
const DefaultMaxBodyBytes int64 = 64 * 1024

// BodyLimit creates a middleware enforcing a maximum request body size.
//
// # Description
//
// Two layers of enforcement:
//
//  1. A declared Content-Length above the cap is rejected up front with 413,
//     before any body bytes are read.
//  2. The body reader is wrapped in http.MaxBytesReader, so a transfer that
//     exceeds the cap mid-stream (chunked encoding, lying Content-Length)
//     fails at read time and the connection is closed. The downstream
//     handler surfaces that read failure as 413 via IsBodyTooLarge.
//
// # Inputs
//
//   - maxBytes: Cap in bytes. Non-positive values use DefaultMaxBodyBytes.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}

	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "request body too large",
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// IsBodyTooLarge reports whether a body read error came from the
// MaxBytesReader guard rather than ordinary malformed input.
func IsBodyTooLarge(err error) bool {
	if err == nil {
		return false
	}
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
