package roles_test

import (
	"errors"
	"testing"

	"github.com/crewdock/crewdock/internal/roles"
)

func TestCanViewUserList(t *testing.T) {
	if err := roles.CanViewUserList(roles.RoleAdmin); err != nil {
		t.Fatalf("admin should view list: %v", err)
	}
	if err := roles.CanViewUserList(roles.RoleSuperAdmin); err != nil {
		t.Fatalf("superadmin should view list: %v", err)
	}
	if err := roles.CanViewUserList(roles.RoleUser); !errors.Is(err, roles.ErrNotAuthorized) {
		t.Fatalf("user should be denied, got %v", err)
	}
}

func TestCanDeleteUserAllPairs(t *testing.T) {
	const actorID, targetID = int64(1), int64(2)
	for _, actor := range roles.All() {
		for _, target := range roles.All() {
			err := roles.CanDeleteUser(actor, actorID, targetID, target)
			switch {
			case target == roles.RoleSuperAdmin && actor != roles.RoleSuperAdmin:
				if !errors.Is(err, roles.ErrDeleteSuper) {
					t.Fatalf("actor=%s target=%s: want ErrDeleteSuper, got %v", actor, target, err)
				}
			case !actor.AtLeast(roles.RoleAdmin):
				if !errors.Is(err, roles.ErrDeleteDenied) {
					t.Fatalf("actor=%s target=%s: want ErrDeleteDenied, got %v", actor, target, err)
				}
			default:
				if err != nil {
					t.Fatalf("actor=%s target=%s: want admit, got %v", actor, target, err)
				}
			}
		}
	}
}

func TestCanDeleteUserDeniesSelf(t *testing.T) {
	for _, actor := range roles.All() {
		err := roles.CanDeleteUser(actor, 7, 7, actor)
		if !errors.Is(err, roles.ErrSelfDelete) {
			t.Fatalf("actor=%s: self deletion must be denied, got %v", actor, err)
		}
	}
}

func TestCanAssignRole(t *testing.T) {
	const actorID, targetID = int64(1), int64(2)
	tests := []struct {
		name      string
		actor     roles.Role
		target    roles.Role
		requested roles.Role
		want      error
	}{
		{"user denied outright", roles.RoleUser, roles.RoleUser, roles.RoleUser, roles.ErrNotAuthorized},
		{"admin demotes admin", roles.RoleAdmin, roles.RoleAdmin, roles.RoleUser, nil},
		{"admin promotes user to admin", roles.RoleAdmin, roles.RoleUser, roles.RoleAdmin, nil},
		{"admin cannot grant superadmin", roles.RoleAdmin, roles.RoleUser, roles.RoleSuperAdmin, roles.ErrAssignAbove},
		{"admin cannot touch superadmin", roles.RoleAdmin, roles.RoleSuperAdmin, roles.RoleUser, roles.ErrTargetAbove},
		{"superadmin grants superadmin", roles.RoleSuperAdmin, roles.RoleUser, roles.RoleSuperAdmin, nil},
		{"superadmin demotes superadmin", roles.RoleSuperAdmin, roles.RoleSuperAdmin, roles.RoleUser, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := roles.CanAssignRole(tc.actor, actorID, targetID, tc.target, tc.requested)
			if tc.want == nil && err != nil {
				t.Fatalf("want admit, got %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCanAssignRoleDeniesSelf(t *testing.T) {
	err := roles.CanAssignRole(roles.RoleSuperAdmin, 3, 3, roles.RoleSuperAdmin, roles.RoleUser)
	if !errors.Is(err, roles.ErrSelfRole) {
		t.Fatalf("want ErrSelfRole, got %v", err)
	}
}
