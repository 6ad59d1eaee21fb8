package models

import (
	"time"

	"github.com/google/uuid"
)

type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time // nil while the token is active
}

// Valid reports whether the token may still be exchanged for a new pair
func (t RefreshToken) Valid(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// Token pair issued by TokenManager, AuthService
type TokenPair struct {
	Access    string
	Refresh   string
	ExpiresIn int64 // access token lifetime in seconds
}
