// Package auth is the access guard: it extracts the bearer credential from a
// request, verifies it, resolves the identity, and attaches the authorization
// context for downstream handlers. All failures are 401 and fail closed.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/httpx"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/models"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/scope"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/token"
)

// ErrUserGone signals that a token's subject no longer exists.
var ErrUserGone = errors.New("user not found")

// UserLoader resolves a user id to its identity record (without exposing the
// password hash to handlers).
type UserLoader interface {
	LoadUser(ctx context.Context, id string) (models.User, error)
}

type contextKey string

const authContextKey contextKey = "legaldash.authctx"

func WithContext(ctx context.Context, ac scope.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, ac)
}

func FromContext(ctx context.Context) (scope.AuthContext, bool) {
	v := ctx.Value(authContextKey)
	if v == nil {
		return scope.AuthContext{}, false
	}
	ac, ok := v.(scope.AuthContext)
	return ac, ok
}

// BearerToken extracts the credential from the Authorization header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}

// Middleware verifies the bearer credential, loads the identity, and attaches
// the AuthContext. An expired token gets a distinguishable message so clients
// can prompt re-login; a valid token whose user row is gone is rejected.
func Middleware(tokens *token.Service, users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				httpx.Error(w, http.StatusUnauthorized, "authorization required")
				return
			}
			userID, role, err := tokens.Verify(raw)
			if err != nil {
				if errors.Is(err, token.ErrExpired) {
					httpx.Error(w, http.StatusUnauthorized, "token expired")
					return
				}
				httpx.Error(w, http.StatusUnauthorized, "invalid token")
				return
			}
			user, err := users.LoadUser(r.Context(), userID)
			if err != nil {
				httpx.Error(w, http.StatusUnauthorized, "invalid token")
				return
			}
			ac := scope.AuthContext{UserID: user.ID, Role: role}
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), ac)))
		})
	}
}
