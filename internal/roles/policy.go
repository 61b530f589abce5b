package roles

import "errors"

// Denial reasons returned by the policy checks. The message text is what the
// handler surfaces as a flash notice, so callers redirect with err.Error()
// verbatim. A nil return always means the operation is admitted.
var (
	ErrNotAuthorized = errors.New("You are not authorized to see this route")
	ErrSelfDelete    = errors.New("You cannot delete your own account, ask another Super Admin")
	ErrSelfRole      = errors.New("You cannot change your own role, ask another Super Admin")
	ErrDeleteSuper   = errors.New("You don't have permission to delete a Super Admin")
	ErrDeleteDenied  = errors.New("You don't have permission to delete users")
	ErrAssignAbove   = errors.New("You don't have permission to assign a role above your own")
	ErrTargetAbove   = errors.New("You don't have permission to modify a user above your own role")
)

// CanViewUserList admits admins and super admins.
func CanViewUserList(actor Role) error {
	if actor.AtLeast(RoleAdmin) {
		return nil
	}
	return ErrNotAuthorized
}

// CanRegisterUser admits admins and super admins.
func CanRegisterUser(actor Role) error {
	if actor.AtLeast(RoleAdmin) {
		return nil
	}
	return ErrNotAuthorized
}

// CanDeleteUser decides whether actor may delete the target account.
// Self-deletion is always denied, a super admin may only be deleted by
// another super admin, and anyone below admin may delete nobody.
func CanDeleteUser(actor Role, actorID, targetID int64, target Role) error {
	if actorID == targetID {
		return ErrSelfDelete
	}
	if target == RoleSuperAdmin && actor != RoleSuperAdmin {
		return ErrDeleteSuper
	}
	if !actor.AtLeast(RoleAdmin) {
		return ErrDeleteDenied
	}
	return nil
}

// CanAssignRole decides whether actor may set the target's role to requested.
// Actors never change their own role, never touch a user who currently
// outranks them, and may only hand out roles at or below their own tier.
// An admin may therefore promote a user to admin, but only a super admin
// may grant (or revoke) super admin.
func CanAssignRole(actor Role, actorID, targetID int64, target, requested Role) error {
	if !actor.AtLeast(RoleAdmin) {
		return ErrNotAuthorized
	}
	if actorID == targetID {
		return ErrSelfRole
	}
	if target.Level() > actor.Level() {
		return ErrTargetAbove
	}
	if requested.Level() > actor.Level() {
		return ErrAssignAbove
	}
	return nil
}
