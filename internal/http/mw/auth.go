// Package mw contains HTTP middleware for the veriscope-api.
package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/veriscope/veriscope-api/internal/models"
)

// ContextKey is a type for context keys.
type ContextKey string

// UserKey is the context key for the authenticated user.
const UserKey ContextKey = "user"

// SecurityScheme is the name of the bearer security scheme in OpenAPI.
const SecurityScheme = "bearerAuth"

// TokenValidator resolves a bearer token to its user. Satisfied by
// *service.AuthService.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*models.User, error)
}

// Auth returns middleware that requires a valid bearer token and stores
// the resolved user in the request context.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeUnauthorized(w, "missing authorization header")
				return
			}

			// Accept a bare token too; clients vary.
			token := strings.TrimPrefix(header, "Bearer ")

			user, err := validator.Validate(r.Context(), token)
			if err != nil {
				writeUnauthorized(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser retrieves the authenticated user from context.
func GetUser(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"title":"Unauthorized","status":401,"detail":"` + msg + `"}`))
}
