package users

import (
	"time"

	"github.com/crewdock/crewdock/internal/roles"
)

// User represents a managed user account.
type User struct {
	ID        int64
	Email     string
	Name      string
	Role      roles.Role
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUser carries the persisted fields of a registration.
type NewUser struct {
	Email        string
	Name         string
	PasswordHash string
	Role         roles.Role
}
