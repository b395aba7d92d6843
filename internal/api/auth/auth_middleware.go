package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/FACorreiaa/go-user-accounts/internal/api"
)

// Authenticate is middleware that gates protected routes. It extracts the
// bearer credential, resolves it to an identity through the AuthService and
// stores the identity on the request context. All failures return the same
// generic 401 body so the rejection reason is not disclosed.
func Authenticate(authService AuthService, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := logger.With(slog.String("middleware", "Authenticate"))

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				l.WarnContext(ctx, "Missing Authorization header")
				api.ErrorResponse(w, r, http.StatusUnauthorized, credentialsErrorMsg)
				return
			}

			headerParts := strings.Split(authHeader, " ")
			if len(headerParts) != 2 || !strings.EqualFold(headerParts[0], "bearer") {
				l.WarnContext(ctx, "Invalid Authorization header format")
				api.ErrorResponse(w, r, http.StatusUnauthorized, credentialsErrorMsg)
				return
			}

			currentUser, err := authService.CurrentUser(ctx, headerParts[1])
			if err != nil {
				l.WarnContext(ctx, "Token rejected", slog.Any("error", err))
				api.ErrorResponse(w, r, http.StatusUnauthorized, credentialsErrorMsg)
				return
			}

			ctx = api.ContextWithUser(ctx, currentUser)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
