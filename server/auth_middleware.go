package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-server/auth"
	apperrors "github.com/jrsteele09/go-session-server/internal/errors"
	"github.com/jrsteele09/go-session-server/token"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyClaims stores parsed token claims
	ContextKeyClaims ContextKey = "claims"
)

// ClaimsFromContext returns the claims placed by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(ContextKeyClaims).(*token.Claims)
	return claims, ok && claims != nil
}

// RequireAuth is middleware that validates a Bearer access token.
// An expired token is reported like an expired session; anything else that
// fails verification is unauthorized.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeEnvelope(w, http.StatusUnauthorized, "missing or malformed Authorization header", nil)
				return
			}

			claims, err := s.tokens.Verify(raw)
			if err != nil {
				if apperrors.Is(err, apperrors.ErrTokenExpired) {
					s.writeError(w, r, auth.ErrTokenExpired)
					return
				}
				writeEnvelope(w, http.StatusUnauthorized, "invalid token", nil)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next(w, r.WithContext(ctx))
		}
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}

	raw := strings.TrimSpace(parts[1])
	return raw, raw != ""
}
