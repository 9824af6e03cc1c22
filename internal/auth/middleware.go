package auth

import (
	"context"
	"net/http"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

type contextKey string

const principalKey contextKey = "principal"

// Middleware rejects requests without a valid bearer token and stores the principal in
// the request context.
func Middleware(verifier TokenVerifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}

			principal, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				if log != nil {
					log.LogSecurity("TOKEN_REJECTED", err.Error())
				}
				unauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole lets through only principals holding role. Must run after Middleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				unauthorized(w, "not authenticated")
				return
			}
			if p.Role != role {
				utils.WriteError(w, http.StatusForbidden, "Forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(models.Principal)
	return p, ok
}

// Helper to extract user ID in handlers
func UserID(ctx context.Context) string {
	p, _ := PrincipalFrom(ctx)
	return p.ID
}

func unauthorized(w http.ResponseWriter, msg string) {
	utils.WriteError(w, http.StatusUnauthorized, "Unauthorized", msg)
}
