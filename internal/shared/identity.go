package shared

import (
	"context"

	"github.com/crewdock/crewdock/internal/roles"
)

// Identity describes the authenticated actor for the current request. It is
// resolved server-side from the session; handlers never trust client-supplied
// identifiers for the acting user.
type Identity struct {
	ID    int64
	Email string
	Name  string
	Role  roles.Role
}

type identityContextKey struct{}

// ContextWithIdentity stores the acting identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the acting identity, nil when anonymous.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
