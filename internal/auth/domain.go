package auth

import (
	"time"

	"github.com/crewdock/crewdock/internal/roles"
)

// User represents an account able to sign in.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         roles.Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
