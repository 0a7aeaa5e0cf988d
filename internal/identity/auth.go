package identity

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tbourn/shiporskip-backend/internal/config"
)

var (
	// ErrInvalidToken means the auth service rejected the bearer token.
	ErrInvalidToken = errors.New("invalid auth token")
	// ErrAuthUnavailable means the auth service could not be reached or is
	// not configured.
	ErrAuthUnavailable = errors.New("auth service unavailable")
)

// Verifier resolves a bearer token to a user identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// RemoteVerifier checks tokens against {BaseURL}/auth/v1/user and caches
// positive answers for TTL. Tokens are cached by hash only.
type RemoteVerifier struct {
	HTTP       *http.Client
	BaseURL    string
	ServiceKey string
	TTL        time.Duration

	now func() time.Time

	mu      sync.Mutex
	cache   map[[32]byte]cachedUser
	lookups uint64
}

type cachedUser struct {
	id      Identity
	expires time.Time
}

// NewRemoteVerifier builds a verifier from cfg. hc may be nil.
func NewRemoteVerifier(cfg config.AuthConfig, hc *http.Client) *RemoteVerifier {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteVerifier{
		HTTP:       hc,
		BaseURL:    strings.TrimRight(cfg.URL, "/"),
		ServiceKey: cfg.ServiceKey,
		TTL:        cfg.CacheTTL,
		cache:      make(map[[32]byte]cachedUser),
	}
}

// Verify returns the user behind token. Only successful lookups are cached.
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	if v == nil || v.BaseURL == "" {
		return Identity{}, ErrAuthUnavailable
	}

	key := sha256.Sum256([]byte(token))
	if id, ok := v.cached(key); ok {
		return id, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.BaseURL+"/auth/v1/user", nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if v.ServiceKey != "" {
		req.Header.Set("apikey", v.ServiceKey)
	}

	resp, err := v.HTTP.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrAuthUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Identity{}, ErrInvalidToken
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Identity{}, fmt.Errorf("%w: status %d", ErrAuthUnavailable, resp.StatusCode)
	}

	var body struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Identity{}, fmt.Errorf("%w: decode: %w", ErrAuthUnavailable, err)
	}
	if body.ID == "" {
		return Identity{}, ErrInvalidToken
	}

	id := User(body.ID, body.Email)
	v.store(key, id)
	return id, nil
}

func (v *RemoteVerifier) clock() time.Time {
	if v.now != nil {
		return v.now()
	}
	return time.Now()
}

func (v *RemoteVerifier) cached(key [32]byte) (Identity, bool) {
	if v.TTL <= 0 {
		return Identity{}, false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.cache[key]
	if !ok {
		return Identity{}, false
	}
	if !v.clock().Before(e.expires) {
		delete(v.cache, key)
		return Identity{}, false
	}
	return e.id, true
}

func (v *RemoteVerifier) store(key [32]byte, id Identity) {
	if v.TTL <= 0 {
		return
	}
	now := v.clock()
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cache == nil {
		v.cache = make(map[[32]byte]cachedUser)
	}
	// Sweep expired entries every 1000 stores to bound memory.
	v.lookups++
	if v.lookups >= 1000 {
		for k, e := range v.cache {
			if !now.Before(e.expires) {
				delete(v.cache, k)
			}
		}
		v.lookups = 0
	}
	v.cache[key] = cachedUser{id: id, expires: now.Add(v.TTL)}
}
