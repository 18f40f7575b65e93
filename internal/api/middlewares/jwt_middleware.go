package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/markdave123-py/Polibase/internal/core"
	"github.com/markdave123-py/Polibase/internal/models"
)

type ctxKey string

const (
	userIDKey ctxKey = "user_id"
	orgIDKey  ctxKey = "organization_id"
	roleKey   ctxKey = "role"
)

// UserID returns the authenticated user's ID from the request context.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// OrgID returns the organization the request is scoped to.
func OrgID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(orgIDKey).(string)
	return v, ok
}

// Role returns the caller's role inside the scoped organization.
func Role(ctx context.Context) (models.Role, bool) {
	v, ok := ctx.Value(roleKey).(models.Role)
	return v, ok
}

// JWT validates the Authorization header and attaches the user ID to the
// request context.
func JWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing or invalid token", http.StatusUnauthorized)
				return
			}

			tokenStr := strings.TrimPrefix(auth, "Bearer ")
			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			userID, ok := claims["user_id"].(string)
			if !ok || userID == "" {
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Membership resolves the caller's role in the organization named by the
// X-Organization-ID header. A missing membership is reported exactly
// like a missing organization, so nothing leaks across tenants.
func Membership(store core.TenantStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserID(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			orgID := strings.TrimSpace(r.Header.Get("X-Organization-ID"))
			if orgID == "" {
				http.Error(w, "X-Organization-ID header required", http.StatusBadRequest)
				return
			}

			m, err := store.GetMembership(r.Context(), userID, orgID)
			if err != nil {
				if errors.Is(err, core.ErrNotFound) {
					http.Error(w, "organization not found", http.StatusNotFound)
					return
				}
				http.Error(w, "membership lookup failed", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), orgIDKey, orgID)
			ctx = context.WithValue(ctx, roleKey, m.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route on a minimum role; admin > manager > employee.
func RequireRole(min models.Role) func(http.Handler) http.Handler {
	rank := map[models.Role]int{
		models.RoleEmployee: 0,
		models.RoleManager:  1,
		models.RoleAdmin:    2,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := Role(r.Context())
			if !ok || rank[role] < rank[min] {
				http.Error(w, "insufficient role", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
