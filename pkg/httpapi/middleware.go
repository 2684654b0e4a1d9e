package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/txn2/secure-agent/pkg/auth"
)

// TokenVerifier is the narrow interface the middleware needs from the auth
// package. *auth.Verifier satisfies it; tests substitute fakes.
type TokenVerifier interface {
	Verify(ctx context.Context, token, requiredRole string) (*auth.Identity, error)
}

// RequireAuth returns middleware that extracts the bearer token, verifies
// it, and installs the resolved identity and raw token in the request
// context. Verification failures short-circuit with 401 (or 403 for a
// missing role) before the handler runs.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return requireAuthRole(verifier, "")
}

// RequireRole behaves like RequireAuth and additionally requires the token
// to carry the given role.
func RequireRole(verifier TokenVerifier, role string) func(http.Handler) http.Handler {
	return requireAuthRole(verifier, role)
}

func requireAuthRole(verifier TokenVerifier, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearer(r)
			if token == "" {
				WriteError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			identity, err := verifier.Verify(r.Context(), token, role)
			if err != nil {
				status, detail := authErrorResponse(err)
				WriteError(w, status, detail)
				return
			}

			ctx := auth.WithIdentity(r.Context(), identity)
			ctx = auth.WithToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractBearer gets the bearer token from the Authorization header, or ""
// if none is present.
func ExtractBearer(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return token
	}
	return ""
}

// authErrorResponse maps verifier errors onto HTTP status codes and detail
// strings. Everything except a role failure is an authentication failure;
// unexpected faults are reported as 401 rather than crashing the request
// (fail closed).
func authErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInsufficientPermissions):
		return http.StatusForbidden, "Insufficient permissions"
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, "Token expired"
	case errors.Is(err, auth.ErrKeyNotFound):
		return http.StatusUnauthorized, "Public key not found"
	case errors.Is(err, auth.ErrUpstreamUnavailable):
		return http.StatusUnauthorized, "Identity provider unavailable"
	}
	var invalid *auth.InvalidTokenError
	if errors.As(err, &invalid) {
		return http.StatusUnauthorized, "Invalid token: " + invalid.Reason
	}
	return http.StatusUnauthorized, "Authentication failed: " + err.Error()
}

// CORS returns middleware that handles cross-origin requests for the given
// allowed origins. An empty list disables CORS headers entirely.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusWriter captures the response status code for request logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// RequestLogger returns middleware that assigns a request ID and logs each
// request with method, path, status, and duration. Headers and bodies are
// not logged; they may carry credentials.
func RequestLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()
			start := time.Now()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			slog.Info("http request",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start),
			)
		})
	}
}
