package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/finxlab/finx/internal/handlers/userctx"
	"github.com/finxlab/finx/internal/models"
)

// Allow to use a function as auth service
type authFunc func(ctx context.Context, access string) (models.User, error)

func (f authFunc) Authenticate(ctx context.Context, access string) (models.User, error) {
	return f(ctx, access)
}

func TestAuthMiddleware(t *testing.T) {
	// Simple handler that try to get user from context
	// If ok write it email to response
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		require.True(t, ok, "middleware must set user before the handler runs")

		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(user.Email))
		require.NoError(t, err, "should write email to response")
	})

	get := func(t *testing.T, mw func(http.Handler) http.Handler, authHeader string) (*http.Response, string) {
		t.Helper()

		srv := httptest.NewServer(mw(handler))
		t.Cleanup(srv.Close)

		req, err := http.NewRequest("GET", srv.URL+"/test", nil)
		require.NoError(t, err)
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err, "should make request to test server")
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err, "should read response body")
		defer resp.Body.Close() // nolint:errcheck

		return resp, string(body)
	}

	t.Run("auth ok", func(t *testing.T) {
		mw := AuthMiddleware(authFunc(func(ctx context.Context, access string) (models.User, error) {
			require.Equal(t, "valid-token", access, "token must reach the service without the Bearer prefix")
			return models.User{Email: "test@example.com"}, nil
		}))

		resp, body := get(t, mw, "Bearer valid-token")

		require.Equalf(t, http.StatusOK, resp.StatusCode, "should return status OK. Resp: %s", body)
		require.Equal(t, "test@example.com", body)
	})

	t.Run("auth fail", func(t *testing.T) {
		mw := AuthMiddleware(authFunc(func(ctx context.Context, access string) (models.User, error) {
			return models.User{}, errors.New("nope")
		}))

		resp, body := get(t, mw, "Bearer bad-token")

		require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "should return status Unauthorized. Resp: %s", body)
		require.JSONEq(t,
			`{
				"error": "service_error",
				"message": "Unauthorized"
			}`,
			body,
		)
	})

	t.Run("missing and malformed headers rejected", func(t *testing.T) {
		mw := AuthMiddleware(authFunc(func(ctx context.Context, access string) (models.User, error) {
			t.Fatal("service must not be called without a bearer token")
			return models.User{}, nil
		}))

		for _, header := range []string{"", "Basic dXNlcjpwYXNz", "Bearer", "Bearer "} {
			resp, _ := get(t, mw, header)
			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "header %q must be rejected", header)
		}
	})
}
