// Package identity resolves who is calling: an authenticated user verified
// against the delegated auth service, or an anonymous caller keyed by a
// salted hash of the client address. It also verifies Cloudflare Turnstile
// tokens for the bot check on analysis endpoints.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Kind distinguishes authenticated users from anonymous callers.
type Kind string

const (
	KindUser      Kind = "user"
	KindAnonymous Kind = "anonymous"
)

// Identity is the resolved caller. Key is the ledger and throttle key:
// "user:<id>" or "anon:<sha256 hex>". The raw client address never leaves
// Anonymous.
type Identity struct {
	Kind   Kind   `json:"kind"`
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Key    string `json:"-"`
}

// User builds an authenticated identity.
func User(id, email string) Identity {
	return Identity{Kind: KindUser, UserID: id, Email: email, Key: "user:" + id}
}

// Anonymous builds the identity of an unauthenticated caller from ip.
func Anonymous(salt, ip string) Identity {
	sum := sha256.Sum256([]byte(salt + ip))
	return Identity{Kind: KindAnonymous, Key: "anon:" + hex.EncodeToString(sum[:])}
}

// Authenticated reports whether the caller is a verified user.
func (i Identity) Authenticated() bool { return i.Kind == KindUser && i.UserID != "" }

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
