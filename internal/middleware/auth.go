package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"spritenest-api/internal/identity"
	"spritenest-api/internal/model"
	"spritenest-api/pkg/apierror"
)

// UserKey is the key for storing the authenticated user in request context.
const UserKey contextKey = "user"

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Identity *identity.Client
}

// RequireAuth rejects requests that do not carry a valid bearer token.
// NO GLOBAL STATE - the identity client is passed via closure.
func RequireAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, apierror.Unauthorized("You must be logged in to upload."))
				return
			}

			user, err := cfg.Identity.UserFromToken(r.Context(), token)
			if err != nil {
				var apiErr *apierror.Error
				if errors.As(err, &apiErr) {
					writeError(w, apiErr)
					return
				}
				writeError(w, apierror.Unauthorized("You must be logged in to upload."))
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the user to the context when a valid bearer token is
// present and lets the request through anonymously otherwise.
func OptionalAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := cfg.Identity.UserFromToken(r.Context(), token)
			if err != nil {
				// A bad token on an open endpoint is treated as anonymous.
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}

// GetUserFromContext retrieves the authenticated user from request context.
// Returns nil for anonymous requests.
func GetUserFromContext(ctx context.Context) *model.User {
	if user, ok := ctx.Value(UserKey).(*model.User); ok {
		return user
	}
	return nil
}
