// ABOUTME: Admission gate resolving credentials to an identity and rate limiting callers.
// ABOUTME: Bearer tokens win over API keys; debug mode admits anonymous connections.

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/conhub/mcp-gateway/internal/window"
)

// Admission errors
var (
	ErrUnauthenticated = errors.New("no valid credentials")
	ErrRateLimited     = errors.New("rate limit exceeded, retry after 60 seconds")
)

// Credentials carries everything a connection attempt presents.
type Credentials struct {
	Token      string
	Key        string
	RemoteAddr string
}

// GateConfig carries the admission settings.
type GateConfig struct {
	// Tokens verifies bearer tokens. Nil disables the bearer path.
	Tokens TokenVerifier
	// Keys verifies API keys against the auth service. Nil disables the
	// key path.
	Keys KeyVerifier
	// KeyCacheTTL bounds how long a positive key verdict is reused.
	KeyCacheTTL time.Duration
	// KeyCacheSize caps the verdict cache. Zero means 1024.
	KeyCacheSize int
	// RatePerMinute is the sliding-window admission limit per caller.
	RatePerMinute int
	// Burst caps admissions per caller within any single second.
	Burst int
	// Debug admits connections with no credentials as anonymous.
	Debug bool

	Logger *slog.Logger
}

// Gate resolves inbound credentials to an authenticated identity and
// enforces the per-caller admission rate limit.
type Gate struct {
	tokens TokenVerifier
	keys   KeyVerifier
	cache  *verdictCache
	minute *window.Limiter
	burst  *window.Limiter
	debug  bool
	logger *slog.Logger
}

// NewGate creates a gate from the given configuration.
func NewGate(cfg GateConfig) *Gate {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.KeyCacheSize <= 0 {
		cfg.KeyCacheSize = 1024
	}
	if cfg.KeyCacheTTL <= 0 {
		cfg.KeyCacheTTL = 30 * time.Second
	}
	return &Gate{
		tokens: cfg.Tokens,
		keys:   cfg.Keys,
		cache:  newVerdictCache(cfg.KeyCacheTTL, cfg.KeyCacheSize),
		minute: window.NewLimiter(cfg.RatePerMinute, time.Minute),
		burst:  window.NewLimiter(cfg.Burst, time.Second),
		debug:  cfg.Debug,
		logger: cfg.Logger,
	}
}

// Admit resolves the credentials and applies the rate limit. A bearer
// token that verifies wins; otherwise a valid API key; otherwise the
// connection is rejected unless debug mode admits it anonymously. The
// rate limit keys on the resolved identity, falling back to the remote
// address when no stable identity exists.
func (g *Gate) Admit(ctx context.Context, creds Credentials) (*Identity, error) {
	identity, authErr := g.resolve(ctx, creds)
	if identity == nil {
		if !g.debug {
			if authErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, authErr)
			}
			return nil, ErrUnauthenticated
		}
		identity = &Identity{Anonymous: true}
	}

	key := identity.Key()
	if key == "" {
		key = "addr:" + creds.RemoteAddr
	}
	if !g.minute.Allow(key) || !g.burst.Allow(key) {
		g.logger.Warn("admission rate limited", "key", key)
		return nil, ErrRateLimited
	}

	return identity, nil
}

// resolve tries each credential kind in order and returns the first
// identity, or nil with the last verification error.
func (g *Gate) resolve(ctx context.Context, creds Credentials) (*Identity, error) {
	var lastErr error

	if creds.Token != "" && g.tokens != nil {
		claims, err := g.tokens.Verify(creds.Token)
		if err == nil {
			return &Identity{
				UserID: claims.UserID,
				Email:  claims.Email,
				Roles:  claims.Roles,
			}, nil
		}
		g.logger.Debug("bearer token rejected", "error", err)
		lastErr = err
	}

	if creds.Key != "" && g.keys != nil {
		if cached, ok := g.cache.get(creds.Key); ok {
			return &cached, nil
		}
		identity, err := g.keys.VerifyKey(ctx, creds.Key)
		if err == nil {
			g.cache.put(creds.Key, *identity)
			return identity, nil
		}
		g.logger.Debug("api key rejected", "error", err)
		lastErr = err
	}

	return nil, lastErr
}

// VerifyBearer resolves a bearer token alone, for the admin HTTP surface
// where only tokens are accepted and no rate limit applies.
func (g *Gate) VerifyBearer(token string) (*Identity, error) {
	if g.tokens == nil {
		return nil, ErrUnauthenticated
	}
	claims, err := g.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	return &Identity{
		UserID: claims.UserID,
		Email:  claims.Email,
		Roles:  claims.Roles,
	}, nil
}

// Close releases the gate's background resources.
func (g *Gate) Close() {
	g.cache.Close()
}
