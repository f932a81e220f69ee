package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/clinic-scheduler/internal/api/httperr"
	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
)

type contextKey string

const claimsKey contextKey = "scheduler.jwtClaims"

// Token audiences. Admin tokens reach the platform admin API; channel tokens
// identify internal booking channels whose bookings are confirmed on create.
const (
	AudienceAdmin   = "admin"
	AudienceChannel = "channel"
)

// BearerJWT enforces an HMAC-signed JWT carrying audience.
func BearerJWT(secret, audience string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				httperr.Write(w, http.StatusUnauthorized, "unauthorized", "auth disabled")
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				httperr.Write(w, http.StatusUnauthorized, "unauthorized", "missing authorization header")
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			}, jwt.WithAudience(audience))
			if err != nil || !token.Valid {
				httperr.Write(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminJWT guards the platform admin API.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return BearerJWT(secret, AudienceAdmin)
}

// ChannelJWT guards the internal booking API and marks the caller trusted.
func ChannelJWT(secret string) func(http.Handler) http.Handler {
	verify := BearerJWT(secret, AudienceChannel)
	return func(next http.Handler) http.Handler {
		return verify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(tenancy.WithTrusted(r.Context())))
		}))
	}
}

// ClaimsFromContext returns verified JWT claims if present.
func ClaimsFromContext(ctx context.Context) (jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(jwt.RegisteredClaims)
	return claims, ok
}
