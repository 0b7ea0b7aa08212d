package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/recipe-api/internal/model"
)

// contextKey is unexported so only this package can set or read the
// authenticated user ID in a request context.
type contextKey string

const userIDKey contextKey = "userID"

// UserLookup is the slice of the user repository the middleware needs.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
}

var errNoCredentials = errors.New("auth: no credentials provided")

// RequireAuth enforces token authentication on protected routes.
//
// The token is read from the Authorization header. Both schemes are accepted:
//
//	Authorization: Bearer <token>
//	Authorization: Token <token>
//
// After the signature check the user is loaded, so a deactivated account is
// locked out immediately instead of when its token expires. Any failure ends
// the chain with 401 and a WWW-Authenticate challenge.
func RequireAuth(tokens *TokenService, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				unauthorized(w, "Authentication credentials were not provided or are invalid.")
				return
			}

			user, err := users.GetUserByID(r.Context(), userID)
			if err != nil || !user.IsActive {
				unauthorized(w, "User inactive or deleted.")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), user.ID)))
		})
	}
}

// WithUserID stores the authenticated user ID in ctx.
// Exported for tests and CLI code that call services directly.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user's ID.
// It returns (0, false) when the request is anonymous.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok && id > 0
}

// extractUserID parses the Authorization header and validates the token.
func extractUserID(r *http.Request, tokens *TokenService) (int64, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return 0, errNoCredentials
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok {
		return 0, errNoCredentials
	}
	if !strings.EqualFold(scheme, "Bearer") && !strings.EqualFold(scheme, "Token") {
		return 0, errNoCredentials
	}

	return tokens.Validate(strings.TrimSpace(token))
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"` + message + `"}`))
}
