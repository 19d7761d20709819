// Package middleware provides HTTP middleware for the relaunch API.
package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// HeaderSharedSecret carries the shared deploy secret.
const HeaderSharedSecret = "X-Relaunch-Secret"

// Credential methods recorded in the request context.
const (
	MethodNone         = "none"
	MethodSharedSecret = "shared_secret"
	MethodBearerToken  = "bearer_token"
)

// =============================================================================
// Auth Configuration
// =============================================================================

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// SharedSecret is compared against the X-Relaunch-Secret header.
	SharedSecret string

	// Tokens are accepted as "Authorization: Bearer <token>".
	Tokens []string

	// Logger for auth middleware logging.
	Logger *slog.Logger
}

// =============================================================================
// Auth Middleware
// =============================================================================

type contextKey struct{}

// AuthMiddleware rejects requests that carry neither the shared secret nor
// a configured bearer token. With neither configured every request passes.
type AuthMiddleware struct {
	config AuthConfig
}

// NewAuthMiddleware creates a new auth middleware with the given config.
func NewAuthMiddleware(cfg AuthConfig) *AuthMiddleware {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	tokens := make([]string, 0, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	cfg.Tokens = tokens
	return &AuthMiddleware{config: cfg}
}

// Enabled reports whether any credential is configured.
func (m *AuthMiddleware) Enabled() bool {
	return m.config.SharedSecret != "" || len(m.config.Tokens) > 0
}

// Handler returns the middleware handler function.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, MethodNone)))
			return
		}

		secret := r.Header.Get(HeaderSharedSecret)
		token := bearerToken(r)
		if secret == "" && token == "" {
			writeJSONError(w, http.StatusUnauthorized, "authentication required", "unauthorized")
			return
		}

		method := m.authenticate(secret, token)
		if method == "" {
			m.config.Logger.Warn("invalid credentials",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			writeJSONError(w, http.StatusForbidden, "invalid credentials", "forbidden")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, method)))
	})
}

func (m *AuthMiddleware) authenticate(secret, token string) string {
	if secret != "" && m.config.SharedSecret != "" && equal(secret, m.config.SharedSecret) {
		return MethodSharedSecret
	}
	if token != "" {
		for _, t := range m.config.Tokens {
			if equal(token, t) {
				return MethodBearerToken
			}
		}
	}
	return ""
}

// MethodFromContext returns the credential method that admitted the request.
func MethodFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKey{}).(string); ok {
		return v
	}
	return ""
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// =============================================================================
// JSON Error Response
// =============================================================================

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code})
}
