package httputil

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"cipherchat/internal/services"
)

type contextKey string

const claimsKey contextKey = "claims"

// BearerAuth rejects requests without a valid bearer token and stores the
// verified claims on the request context.
func BearerAuth(auth *services.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				Error(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := auth.VerifyToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				Error(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

// WithClaims returns a context carrying the given claims, as BearerAuth
// stores them after verification.
func WithClaims(ctx context.Context, claims *services.TokenClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFrom returns the verified token claims stored by BearerAuth.
func ClaimsFrom(ctx context.Context) (*services.TokenClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*services.TokenClaims)
	return claims, ok
}

// JSON writes a JSON response body with the given status.
func JSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Error writes a JSON error body with the given status.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
