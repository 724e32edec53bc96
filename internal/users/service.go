package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/counsel-pm/counsel/internal/rbac"
	"github.com/counsel-pm/counsel/internal/shared"
)

// MemberStore defines data access methods for firm membership management.
type MemberStore interface {
	ListMembers(ctx context.Context, firmID int64) ([]Member, error)
	FindUserByEmail(ctx context.Context, email string) (rbac.User, error)
	CreateUser(ctx context.Context, email, name string) (rbac.User, error)
	AddMembership(ctx context.Context, userID, firmID, roleID int64) error
	SetMemberRole(ctx context.Context, userID, firmID, roleID int64) error
	RemoveMembership(ctx context.Context, userID, firmID int64) error
}

// Service handles membership business logic.
type Service struct {
	repo     MemberStore
	roles    *rbac.RoleService
	audit    shared.AuditRecorder
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService builds Service instance. audit may be nil.
func NewService(repo MemberStore, roles *rbac.RoleService, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, audit: audit, logger: logger, validate: validator.New()}
}

// ListMembers returns the members of firmID.
func (s *Service) ListMembers(ctx context.Context, firmID int64) ([]Member, error) {
	return s.repo.ListMembers(ctx, firmID)
}

// Invite adds the user behind in.Email to firmID with in.RoleID, creating the
// directory record when the email is new. The role may not carry permissions
// the actor lacks.
func (s *Service) Invite(ctx context.Context, actor rbac.Principal, firmID int64, in InviteInput) (Member, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.validate.Var(email, "required,email"); err != nil {
		return Member{}, fmt.Errorf("%w: invalid email", shared.ErrValidation)
	}
	role, err := s.grantableRole(ctx, actor, in.RoleID, firmID)
	if err != nil {
		return Member{}, err
	}
	user, err := s.repo.FindUserByEmail(ctx, email)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		name := strings.TrimSpace(in.Name)
		if name == "" {
			name = email
		}
		user, err = s.repo.CreateUser(ctx, email, name)
		if err != nil {
			return Member{}, fmt.Errorf("users: create user: %w", err)
		}
	case err != nil:
		return Member{}, fmt.Errorf("users: find user: %w", err)
	}
	if err := s.repo.AddMembership(ctx, user.ID, firmID, role.ID); err != nil {
		return Member{}, fmt.Errorf("users: add membership: %w", err)
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actor.UserID(),
		FirmID:   firmID,
		Action:   "membership.invite",
		Entity:   "user",
		EntityID: strconv.FormatInt(user.ID, 10),
		Meta:     map[string]any{"role_id": role.ID},
	})
	return Member{UserID: user.ID, Name: user.Name, Email: user.Email, RoleID: role.ID, RoleName: role.Name}, nil
}

// AssignRole changes the role userID holds in firmID. The role must belong to
// firmID and grant nothing beyond the actor's own permissions.
func (s *Service) AssignRole(ctx context.Context, actor rbac.Principal, firmID, userID, roleID int64) error {
	role, err := s.grantableRole(ctx, actor, roleID, firmID)
	if err != nil {
		return err
	}
	if err := s.repo.SetMemberRole(ctx, userID, firmID, role.ID); err != nil {
		return fmt.Errorf("users: set member role: %w", err)
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actor.UserID(),
		FirmID:   firmID,
		Action:   "membership.assign_role",
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     map[string]any{"role_id": role.ID},
	})
	return nil
}

// Revoke removes userID from firmID. Actors cannot revoke themselves.
func (s *Service) Revoke(ctx context.Context, actorID, firmID, userID int64) error {
	if actorID == userID {
		return fmt.Errorf("%w: cannot revoke your own membership", shared.ErrValidation)
	}
	if err := s.repo.RemoveMembership(ctx, userID, firmID); err != nil {
		return fmt.Errorf("users: remove membership: %w", err)
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		FirmID:   firmID,
		Action:   "membership.revoke",
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
	})
	return nil
}

// firmRole resolves a role assignable inside firmID. The platform role is
// never assignable through a firm.
func (s *Service) firmRole(ctx context.Context, roleID, firmID int64) (rbac.Role, error) {
	role, err := s.roles.ResolveRole(ctx, roleID, firmID)
	if err != nil {
		return rbac.Role{}, err
	}
	if role.IsPlatform() {
		return rbac.Role{}, shared.ErrRoleNotFound
	}
	return role, nil
}

func (s *Service) grantableRole(ctx context.Context, actor rbac.Principal, roleID, firmID int64) (rbac.Role, error) {
	role, err := s.firmRole(ctx, roleID, firmID)
	if err != nil {
		return rbac.Role{}, err
	}
	if err := rbac.CheckGrant(actor, role.Permissions.Slice()); err != nil {
		return rbac.Role{}, err
	}
	return role, nil
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("users audit record", slog.String("action", log.Action), slog.Any("error", err))
	}
}
