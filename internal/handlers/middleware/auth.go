package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/finxlab/finx/internal/handlers/render"
	"github.com/finxlab/finx/internal/handlers/userctx"
	"github.com/finxlab/finx/internal/models"
)

type authService interface {
	Authenticate(ctx context.Context, access string) (models.User, error)
}

// AuthMiddleware resolves the user from the Authorization bearer token.
// Every token failure (expired, tampered, wrong kind) collapses into one
// uniform unauthorized response, the distinction stays in server logs.
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, ok := bearerToken(r)
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := as.Authenticate(r.Context(), access)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")

	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}

	return token, true
}
