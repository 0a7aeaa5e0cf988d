// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, a hardening middleware for the JSON API.
// Besides the usual browser headers it decides caching per route: research
// reports are private and default to no-store, while routes that answer with
// an ETag are marked private, no-cache so browsers revalidate instead of
// refetching.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// exposedHeaders are readable by browser clients on cross-origin responses.
var exposedHeaders = []string{"X-Request-ID", "Retry-After", "ETag"}

// SecurityOptions configures HTTP security headers emitted by SecurityHeaders.
type SecurityOptions struct {
	EnableHSTS   bool          // set true only when traffic is HTTPS end-to-end
	HSTSMaxAge   time.Duration // defaults to 180 days
	NoStore      bool          // add Cache-Control: no-store
	EnablePolicy bool          // include Permissions-Policy, etc.

	// Revalidate lists path prefixes (matched against the request path) that
	// get "private, no-cache" instead of no-store.
	Revalidate []string
}

// SecurityHeaders returns a Gin middleware that adds security headers:
//
//   - always: X-Content-Type-Options, X-Frame-Options, Referrer-Policy
//   - EnablePolicy: Permissions-Policy and X-Permitted-Cross-Domain-Policies
//   - NoStore: Cache-Control no-store (or private, no-cache for Revalidate)
//   - EnableHSTS on HTTPS requests: Strict-Transport-Security
//
// X-Request-ID, Retry-After and ETag are appended to
// Access-Control-Expose-Headers without clobbering existing values.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		if opt.NoStore {
			if hasAnyPrefix(c.Request.URL.Path, opt.Revalidate) {
				h.Set("Cache-Control", "private, no-cache")
			} else {
				h.Set("Cache-Control", "no-store")
				h.Set("Pragma", "no-cache")
				h.Set("Expires", "0")
			}
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		h.Set("Access-Control-Expose-Headers", mergeExposed(h.Get("Access-Control-Expose-Headers")))

		c.Next()
	}
}

// mergeExposed appends the missing exposedHeaders to cur.
func mergeExposed(cur string) string {
	out := cur
	for _, name := range exposedHeaders {
		if strings.Contains(strings.ToLower(out), strings.ToLower(name)) {
			continue
		}
		if out == "" {
			out = name
		} else {
			out += ", " + name
		}
	}
	return out
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// isHTTPS reports whether the incoming request used HTTPS either directly
// (r.TLS != nil) or via a reverse proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
