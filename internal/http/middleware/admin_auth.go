// Package middleware holds the HTTP middleware shared by the webhook and
// admin surfaces.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const reviewerClaimsKey contextKey = "reviewerClaims"

// AdminJWT enforces an HMAC-signed JWT on the admin surface. The token
// subject identifies the reviewer for the curation audit trail.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "admin auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), reviewerClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ReviewerFromContext returns the authenticated reviewer's identity (the JWT
// subject), or "unknown" when the request was not authenticated.
func ReviewerFromContext(ctx context.Context) string {
	claims, ok := ctx.Value(reviewerClaimsKey).(jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "unknown"
	}
	return claims.Subject
}
