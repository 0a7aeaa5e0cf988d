// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's identity. A bearer token is verified with
// the configured identity.Verifier; a valid token yields a user identity,
// anything else an anonymous identity keyed by a salted hash of the client
// IP. The identity is stored both in the request context (for services) and
// in the Gin context under "userID" (for logging, rate limiting and
// idempotency).
//
// Authentication never rejects a request: endpoints that require a user
// check the identity themselves.
package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/shiporskip-backend/internal/identity"
)

const ctxKeyIdentity = "identity"

// Authenticate resolves the caller identity for every request. verifier may
// be nil, in which case every caller is anonymous.
func Authenticate(verifier identity.Verifier, anonSalt string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity.Anonymous(anonSalt, c.ClientIP())

		if token := bearerToken(c.GetHeader("Authorization")); token != "" && verifier != nil {
			u, err := verifier.Verify(c.Request.Context(), token)
			switch {
			case err == nil:
				id = u
			case errors.Is(err, identity.ErrInvalidToken):
				// Expired or forged tokens fall back to anonymous.
			default:
				log.Warn().Err(err).Msg("auth provider unavailable; treating caller as anonymous")
			}
		}

		c.Set(ctxKeyIdentity, id)
		if id.Authenticated() {
			c.Set("userID", id.UserID)
		}
		c.Request = c.Request.WithContext(identity.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// IdentityFrom returns the identity resolved by Authenticate. Without it the
// caller is anonymous, keyed by client IP.
func IdentityFrom(c *gin.Context) identity.Identity {
	if v, ok := c.Get(ctxKeyIdentity); ok {
		if id, ok := v.(identity.Identity); ok {
			return id
		}
	}
	if c.Request != nil {
		if id, ok := identity.FromContext(c.Request.Context()); ok {
			return id
		}
	}
	return identity.Anonymous("", c.ClientIP())
}

func bearerToken(h string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(h), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
