package userctx

import (
	"context"

	"github.com/finxlab/finx/internal/models"
)

// Unexported struct key, no other package can collide with it
type ctxKey struct{}

// New returns a context carrying the authenticated user
func New(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext extracts the user placed there by the auth middleware.
// ok is false on routes that never went through it.
func FromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(models.User)
	return u, ok
}
