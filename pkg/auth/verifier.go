// Package auth verifies bearer tokens issued by an external identity
// provider (Keycloak) and enforces coarse role-based authorization. It
// caches the provider's JWKS and resolves a caller identity from verified
// claims.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// maxTokenSize is the maximum accepted size for a token string (8 KB).
// Larger tokens are rejected to prevent resource exhaustion.
const maxTokenSize = 8192

// Identity is the resolved principal from a successful verification.
// Name is the only field handlers normally need.
type Identity struct {
	// Name is the preferred_username claim, falling back to sub.
	Name string

	// Subject is the sub claim.
	Subject string

	// Roles are the client roles granted under resource_access for the
	// configured client ID. Empty when the claim path is absent.
	Roles []string
}

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	// Issuer is the exact expected iss claim
	// (e.g. "https://keycloak.example.com/realms/myrealm").
	Issuer string

	// Audience is the exact expected aud claim.
	Audience string

	// ClientID is this service's registered client ID, used to look up
	// role grants under resource_access.
	ClientID string

	// ClockSkew is the allowed leeway when validating time-based claims.
	ClockSkew time.Duration
}

// Verifier validates signed bearer tokens against a cached key set.
// It is safe for concurrent use by multiple goroutines.
type Verifier struct {
	cfg    VerifierConfig
	keyset *KeySetCache
}

// NewVerifier creates a token verifier backed by the given key set cache.
func NewVerifier(cfg VerifierConfig, keyset *KeySetCache) (*Verifier, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("auth: issuer is required")
	}
	if cfg.Audience == "" {
		return nil, fmt.Errorf("auth: audience is required")
	}
	if keyset == nil {
		return nil, fmt.Errorf("auth: key set cache is required")
	}
	return &Verifier{cfg: cfg, keyset: keyset}, nil
}

// Verify validates the token's signature, expiry, issuer, and audience, and
// returns the resolved identity. When requiredRole is non-empty the token
// must additionally carry that role under resource_access[clientID].roles;
// an absent claim path counts as no roles, not an error.
//
// Only RS256 is accepted. Tokens declaring any other algorithm, including
// "none", are rejected outright.
func (v *Verifier) Verify(ctx context.Context, tokenStr, requiredRole string) (*Identity, error) {
	if tokenStr == "" {
		return nil, invalidToken("token must not be empty")
	}
	if len(tokenStr) > maxTokenSize {
		return nil, invalidToken("token exceeds maximum size")
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.ClockSkew),
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, invalidToken("token header missing kid")
		}
		return v.keyset.Key(ctx, kid)
	}, parserOpts...)
	if err != nil {
		classified := classifyError(err)
		slog.Debug("auth: token verification failed", "error", classified)
		return nil, classified
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, invalidToken("unable to extract claims")
	}

	identity := v.resolveIdentity(claims)

	if requiredRole != "" && !slices.Contains(identity.Roles, requiredRole) {
		slog.Info("auth: role check failed",
			"user", identity.Name, "required_role", requiredRole)
		return nil, ErrInsufficientPermissions
	}

	return identity, nil
}

// resolveIdentity builds an Identity from verified claims. The display name
// prefers preferred_username and falls back to sub.
func (v *Verifier) resolveIdentity(claims jwt.MapClaims) *Identity {
	sub, _ := claims["sub"].(string)
	name, _ := claims["preferred_username"].(string)
	if name == "" {
		name = sub
	}
	return &Identity{
		Name:    name,
		Subject: sub,
		Roles:   resourceRoles(claims, v.cfg.ClientID),
	}
}
