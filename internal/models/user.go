package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Email          string
	HashedPassword string
	FirstName      string
	LastName       string
	LastLoginAt    *time.Time // nil if user never logged in
}
