package users

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/crewdock/crewdock/internal/roles"
	"github.com/crewdock/crewdock/internal/shared"
)

// RepositoryPort defines the data access methods the service needs.
type RepositoryPort interface {
	ListUsers(ctx context.Context, limit, offset int) ([]User, error)
	CountUsers(ctx context.Context) (int, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, nu NewUser) (*User, error)
	UpdateRole(ctx context.Context, id int64, role roles.Role) (*User, error)
	DeleteUser(ctx context.Context, id int64) (bool, error)
	DeleteUserUnlessSuper(ctx context.Context, id int64) (bool, error)
	UpdateEmail(ctx context.Context, id int64, email string) (*User, error)
}

// AuditPort records user mutations for the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// WelcomePort enqueues the welcome email sent to new accounts.
type WelcomePort interface {
	EnqueueWelcomeEmail(ctx context.Context, email, name string) error
}

// RegisterInput carries a validated registration request.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
	Role     roles.Role
}

// Service handles user management business logic. Every mutation consults
// the role policy first and stops on the first denial.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	welcome WelcomePort
	logger  *slog.Logger
}

// NewService builds a Service instance. audit and welcome may be nil in
// tests; both are best-effort side channels.
func NewService(repo RepositoryPort, audit AuditPort, welcome WelcomePort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, welcome: welcome, logger: logger}
}

// List returns one page of users for actors allowed to see the listing.
func (s *Service) List(ctx context.Context, actor *shared.Identity, page int) ([]User, shared.Pagination, error) {
	if err := roles.CanViewUserList(actor.Role); err != nil {
		return nil, shared.Pagination{}, err
	}
	total, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(page, shared.DefaultPerPage, total)
	list, err := s.repo.ListUsers(ctx, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, p, nil
}

// Get fetches a single user for actors allowed to see the listing.
func (s *Service) Get(ctx context.Context, actor *shared.Identity, id int64) (*User, error) {
	if err := roles.CanViewUserList(actor.Role); err != nil {
		return nil, err
	}
	return s.repo.GetUser(ctx, id)
}

// GetSelf fetches the actor's own record; no role gate beyond being
// authenticated.
func (s *Service) GetSelf(ctx context.Context, actor *shared.Identity) (*User, error) {
	return s.repo.GetUser(ctx, actor.ID)
}

// Register creates a new user account. The requested role may not outrank
// the actor's own tier.
func (s *Service) Register(ctx context.Context, actor *shared.Identity, input RegisterInput) (*User, error) {
	if err := roles.CanRegisterUser(actor.Role); err != nil {
		return nil, err
	}
	if !input.Role.Valid() {
		return nil, shared.ErrInvalidRole
	}
	if input.Role.Level() > actor.Role.Level() {
		return nil, roles.ErrAssignAbove
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.CreateUser(ctx, NewUser{
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: string(hash),
		Role:         input.Role,
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, shared.AuditUserRegistered, user.ID, map[string]any{"email": user.Email, "role": user.Role.String()})
	if s.welcome != nil {
		if err := s.welcome.EnqueueWelcomeEmail(ctx, user.Email, user.Name); err != nil {
			s.logger.Warn("enqueue welcome email", slog.Any("error", err))
		}
	}
	return user, nil
}

// Delete removes a user after the policy admits the operation. The delete
// statement re-asserts the super-admin guard so the decision cannot be
// invalidated by a concurrent role change.
func (s *Service) Delete(ctx context.Context, actor *shared.Identity, targetID int64) (*User, error) {
	target, err := s.repo.GetUser(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if err := roles.CanDeleteUser(actor.Role, actor.ID, targetID, target.Role); err != nil {
		return nil, err
	}
	var deleted bool
	if actor.Role == roles.RoleSuperAdmin {
		deleted, err = s.repo.DeleteUser(ctx, targetID)
	} else {
		deleted, err = s.repo.DeleteUserUnlessSuper(ctx, targetID)
	}
	if err != nil {
		return nil, err
	}
	if !deleted {
		// Row vanished or was promoted between the policy check and the
		// conditional delete.
		if current, getErr := s.repo.GetUser(ctx, targetID); getErr == nil && current.Role == roles.RoleSuperAdmin {
			return nil, roles.ErrDeleteSuper
		}
		return nil, shared.ErrNotFound
	}
	s.recordAudit(ctx, actor, shared.AuditUserDeleted, targetID, map[string]any{"email": target.Email, "role": target.Role.String()})
	return target, nil
}

// ChangeRole updates a user's role after the assignment policy admits it.
func (s *Service) ChangeRole(ctx context.Context, actor *shared.Identity, targetID int64, requested roles.Role) (*User, error) {
	if !requested.Valid() {
		return nil, shared.ErrInvalidRole
	}
	target, err := s.repo.GetUser(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if err := roles.CanAssignRole(actor.Role, actor.ID, targetID, target.Role, requested); err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateRole(ctx, targetID, requested)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, shared.AuditRoleChanged, targetID, map[string]any{
		"email": updated.Email,
		"from":  target.Role.String(),
		"to":    updated.Role.String(),
	})
	return updated, nil
}

// UpdateOwnEmail changes the email of the acting identity. The target id is
// always taken from the session-resolved actor, never from the request.
func (s *Service) UpdateOwnEmail(ctx context.Context, actor *shared.Identity, email string) (*User, error) {
	updated, err := s.repo.UpdateEmail(ctx, actor.ID, email)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, shared.AuditEmailChanged, actor.ID, map[string]any{"from": actor.Email, "to": updated.Email})
	return updated, nil
}

func (s *Service) recordAudit(ctx context.Context, actor *shared.Identity, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, log); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("record audit log", slog.String("action", action), slog.Any("error", err))
	}
}
