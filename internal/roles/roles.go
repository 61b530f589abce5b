// Package roles defines the ordered privilege tiers and the pure
// authorization rules gating user management operations.
package roles

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is a privilege tier attached to a user account.
type Role string

// Canonical role values as stored in the users table.
const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

var titleCaser = cases.Title(language.English)

// All lists every valid role in ascending privilege order.
func All() []Role {
	return []Role{RoleUser, RoleAdmin, RoleSuperAdmin}
}

// Parse normalizes a role string to its canonical value. Legacy spellings
// such as "SUPER ADMIN" or "super-admin" are accepted case-insensitively.
func Parse(raw string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(normalized)
	switch normalized {
	case "user":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	case "superadmin":
		return RoleSuperAdmin, nil
	}
	return "", fmt.Errorf("roles: unknown role %q", raw)
}

// Valid reports whether the role is one of the canonical values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Level returns the privilege ordering: user < admin < superadmin.
// Unknown roles rank below user.
func (r Role) Level() int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperAdmin:
		return 3
	}
	return 0
}

// AtLeast reports whether r carries at least the privilege of min.
func (r Role) AtLeast(min Role) bool {
	return r.Level() >= min.Level()
}

// Label renders the display text for a role, e.g. "Super Admin".
func (r Role) Label() string {
	if r == RoleSuperAdmin {
		return "Super Admin"
	}
	return titleCaser.String(string(r))
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}
