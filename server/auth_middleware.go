package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/campus-auth-client/authmodel"
	"github.com/jrsteele09/campus-auth-client/internal/errors"
	"github.com/jrsteele09/campus-auth-client/server/tokens"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyClaims stores the parsed access token claims
const ContextKeyClaims ContextKey = "claims"

// RequireAuth validates the bearer access token. An expired token is answered with
// AUTH_TOKEN_EXPIRED so the client refreshes; any other problem is terminal.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header", authmodel.CodeTokenMissing)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format", authmodel.CodeTokenInvalid)
				return
			}

			claims, err := s.access.Validate(parts[1])
			switch {
			case errors.Is(err, errors.ErrTokenExpired):
				writeError(w, http.StatusUnauthorized, "access token expired", authmodel.CodeTokenExpired)
				return
			case err != nil:
				writeError(w, http.StatusUnauthorized, "invalid access token", authmodel.CodeTokenInvalid)
				return
			case s.revoked.IsRevoked(claims.ID):
				writeError(w, http.StatusUnauthorized, "access token revoked", authmodel.CodeTokenInvalid)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next(w, r.WithContext(ctx))
		}
	}
}

func claimsFromContext(ctx context.Context) (*tokens.AccessClaims, bool) {
	claims, ok := ctx.Value(ContextKeyClaims).(*tokens.AccessClaims)
	return claims, ok
}
