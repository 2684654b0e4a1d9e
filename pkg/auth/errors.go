package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors returned by the verifier. Handlers map these onto HTTP
// status codes; everything that is not InsufficientPermissions is treated
// as an authentication failure (fail closed).
var (
	// ErrTokenExpired indicates the token's exp claim is in the past.
	ErrTokenExpired = errors.New("token expired")

	// ErrKeyNotFound indicates no cached signing key matches the token's kid,
	// even after a cache refresh.
	ErrKeyNotFound = errors.New("public key not found")

	// ErrInsufficientPermissions indicates the token is valid but does not
	// carry the required role.
	ErrInsufficientPermissions = errors.New("insufficient permissions")

	// ErrUpstreamUnavailable indicates the identity provider could not be
	// reached or returned a non-success status.
	ErrUpstreamUnavailable = errors.New("identity provider unavailable")
)

// InvalidTokenError covers malformed tokens, bad signatures, and
// issuer/audience mismatches. Reason is safe to return to callers; it never
// contains token material.
type InvalidTokenError struct {
	Reason string
}

func (e *InvalidTokenError) Error() string {
	return fmt.Sprintf("invalid token: %s", e.Reason)
}

// invalidToken builds an InvalidTokenError with a formatted reason.
func invalidToken(format string, args ...any) *InvalidTokenError {
	return &InvalidTokenError{Reason: fmt.Sprintf(format, args...)}
}

// classifyError converts golang-jwt parse errors into the verifier's error
// taxonomy. Errors already belonging to the taxonomy pass through unchanged,
// including sentinel errors surfaced from the keyfunc.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrKeyNotFound),
		errors.Is(err, ErrUpstreamUnavailable),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrInsufficientPermissions):
		return err
	}
	var invalid *InvalidTokenError
	if errors.As(err, &invalid) {
		return invalid
	}

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return invalidToken("token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return invalidToken("signature verification failed")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return invalidToken("issuer mismatch")
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return invalidToken("audience mismatch")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return invalidToken("token not valid yet")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return invalidToken("token is unverifiable")
	}

	return invalidToken("%v", err)
}
