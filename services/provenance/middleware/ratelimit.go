// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client write rate limit.
type RateLimitConfig struct {
	// RPS is the sustained requests-per-second allowance per client.
	// Default: 1.
	RPS float64

	// Burst is the instantaneous burst allowance per client.
	// Default: 5.
	Burst int

	// TrustProxy selects the client key source. When true, the first entry
	// of X-Forwarded-For is trusted; when false, the socket address is used.
	// Only enable behind a proxy that strips client-supplied values.
	TrustProxy bool
}

// clientLimiters holds one token bucket per client key.
//
// Entries are never evicted; the key space is bounded by the set of distinct
// writer IPs, which for this service is the upstream reply pipeline plus
// operators, not the public internet.
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func (cl *clientLimiters) get(key string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	lim, ok := cl.limiters[key]
	if !ok {
		lim = rate.NewLimiter(cl.rps, cl.burst)
		cl.limiters[key] = lim
	}
	return lim
}

// RateLimit creates a per-client-IP rate limiting middleware.
//
// # Description
//
// Each client key owns an independent token bucket (golang.org/x/time/rate).
// A request that cannot be served immediately is rejected with 429, a JSON
// body carrying retryAfter in seconds, and a Retry-After header computed from
// the bucket's reservation delay. The reservation is cancelled so a rejected
// request does not consume future quota.
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}

	limiters := &clientLimiters{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(cfg.RPS),
		burst:    cfg.Burst,
	}

	return func(c *gin.Context) {
		key := ClientKey(c, cfg.TrustProxy)

		res := limiters.get(key).Reserve()
		if !res.OK() {
			// Burst misconfigured to zero tokens; treat as a flat rejection.
			respondRateLimited(c, 1)
			return
		}
		delay := res.Delay()
		if delay > 0 {
			res.Cancel()
			respondRateLimited(c, retryAfterFromDelay(delay))
			return
		}

		c.Next()
	}
}

func respondRateLimited(c *gin.Context, retryAfter int) {
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":      "rate limit exceeded",
		"retryAfter": retryAfter,
	})
}

// ClientKey returns the rate-limit key for a request.
//
// # Description
//
// With trustProxy set, the first (client-most) entry of X-Forwarded-For is
// used when present; a missing or empty header falls back to the socket
// address. Without trustProxy the socket address is always used, so a
// client cannot spoof its way into a fresh bucket.
func ClientKey(c *gin.Context, trustProxy bool) string {
	if trustProxy {
		if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}

	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}

// retryAfterFromDelay is kept separate for testing the rounding rule:
// any positive sub-second delay still asks the caller to wait a full second.
func retryAfterFromDelay(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
