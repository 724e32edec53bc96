package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/counsel-pm/counsel/internal/shared"
)

// RoleService owns role authoring and firm-scoped role resolution.
type RoleService struct {
	store   RoleStore
	catalog *Catalog
	audit   shared.AuditRecorder
	logger  *slog.Logger
}

// NewRoleService constructs a RoleService. audit may be nil.
func NewRoleService(store RoleStore, catalog *Catalog, audit shared.AuditRecorder, logger *slog.Logger) *RoleService {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleService{store: store, catalog: catalog, audit: audit, logger: logger}
}

// CreateRoleInput carries the fields of a new firm role.
type CreateRoleInput struct {
	FirmID      int64
	Name        string
	Description string
	Permissions []Permission
}

// ResolveRole loads roleID and checks it belongs to firmID. The platform role
// resolves in every firm scope.
func (s *RoleService) ResolveRole(ctx context.Context, roleID, firmID int64) (Role, error) {
	if roleID <= 0 {
		return Role{}, shared.ErrRoleNotFound
	}
	role, err := s.store.LoadRole(ctx, roleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Role{}, shared.ErrRoleNotFound
		}
		return Role{}, fmt.Errorf("rbac: load role: %w", err)
	}
	if !role.IsPlatform() && role.FirmID != firmID {
		return Role{}, shared.ErrRoleNotFound
	}
	return role, nil
}

// Catalog returns the catalog role permissions are validated against.
func (s *RoleService) Catalog() *Catalog {
	return s.catalog
}

// ListRoles returns the roles defined for firmID.
func (s *RoleService) ListRoles(ctx context.Context, firmID int64) ([]Role, error) {
	return s.store.ListRoles(ctx, firmID)
}

// CreateRole validates and persists a firm role. Nothing is written when any
// permission is outside the catalog or the name is taken.
func (s *RoleService) CreateRole(ctx context.Context, actorID int64, in CreateRoleInput) (Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	if in.FirmID <= 0 {
		return Role{}, fmt.Errorf("%w: firm required", shared.ErrValidation)
	}
	perms := dedupe(in.Permissions)
	if err := s.catalog.Validate(perms); err != nil {
		return Role{}, err
	}
	existing, err := s.store.ListRoles(ctx, in.FirmID)
	if err != nil {
		return Role{}, fmt.Errorf("rbac: list roles: %w", err)
	}
	folded := foldName(name)
	for _, r := range existing {
		if foldName(r.Name) == folded {
			return Role{}, fmt.Errorf("%w: %q", shared.ErrDuplicateRole, name)
		}
	}
	role, err := s.store.CreateRole(ctx, Role{
		FirmID:      in.FirmID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Permissions: NewPermissionSet(perms...),
	})
	if err != nil {
		if errors.Is(err, shared.ErrDuplicateRole) {
			return Role{}, fmt.Errorf("%w: %q", shared.ErrDuplicateRole, name)
		}
		return Role{}, fmt.Errorf("rbac: create role: %w", err)
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		FirmID:   role.FirmID,
		Action:   "role.create",
		Entity:   "role",
		EntityID: strconv.FormatInt(role.ID, 10),
		Meta:     map[string]any{"name": role.Name, "permissions": role.Permissions.Strings()},
	})
	return role, nil
}

// CheckGrant fails with ErrMissingPermission unless actor holds every one of
// perms. Super Admin may grant anything.
func CheckGrant(actor Principal, perms []Permission) error {
	if actor.IsSuperAdmin() {
		return nil
	}
	for _, p := range perms {
		if !actor.Has(p) {
			return fmt.Errorf("%w: cannot grant permissions you do not hold", shared.ErrMissingPermission)
		}
	}
	return nil
}

// SetRolePermissions replaces the permission set of a firm role. Permissions
// added to the role must be held by actor.
func (s *RoleService) SetRolePermissions(ctx context.Context, actor Principal, firmID, roleID int64, perms []Permission) (Role, error) {
	perms = dedupe(perms)
	if err := s.catalog.Validate(perms); err != nil {
		return Role{}, err
	}
	role, err := s.ResolveRole(ctx, roleID, firmID)
	if err != nil {
		return Role{}, err
	}
	if role.IsPlatform() {
		return Role{}, shared.ErrRoleNotFound
	}
	var added []Permission
	for _, p := range perms {
		if !role.Permissions.Has(p) {
			added = append(added, p)
		}
	}
	if err := CheckGrant(actor, added); err != nil {
		return Role{}, err
	}
	if err := s.store.ReplaceRolePermissions(ctx, role.ID, perms); err != nil {
		return Role{}, fmt.Errorf("rbac: replace role permissions: %w", err)
	}
	role.Permissions = NewPermissionSet(perms...)
	s.record(ctx, shared.AuditLog{
		ActorID:  actor.UserID(),
		FirmID:   firmID,
		Action:   "role.update_permissions",
		Entity:   "role",
		EntityID: strconv.FormatInt(role.ID, 10),
		Meta:     map[string]any{"permissions": role.Permissions.Strings()},
	})
	return role, nil
}

// DeleteRole removes a firm role. Memberships holding it move to
// replacementRoleID, or lose their role reference when it is zero.
func (s *RoleService) DeleteRole(ctx context.Context, actorID, firmID, roleID, replacementRoleID int64) error {
	role, err := s.ResolveRole(ctx, roleID, firmID)
	if err != nil {
		return err
	}
	if role.IsPlatform() {
		return shared.ErrRoleNotFound
	}
	if replacementRoleID != 0 {
		if replacementRoleID == roleID {
			return fmt.Errorf("%w: replacement must differ from the deleted role", shared.ErrValidation)
		}
		replacement, err := s.ResolveRole(ctx, replacementRoleID, firmID)
		if err != nil {
			return err
		}
		if replacement.IsPlatform() {
			return shared.ErrRoleNotFound
		}
	}
	reassigned, err := s.store.DeleteRole(ctx, roleID, replacementRoleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrRoleNotFound
		}
		return fmt.Errorf("rbac: delete role: %w", err)
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		FirmID:   firmID,
		Action:   "role.delete",
		Entity:   "role",
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     map[string]any{"replacement_role_id": replacementRoleID, "reassigned": reassigned},
	})
	return nil
}

func (s *RoleService) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("rbac audit record", slog.String("action", log.Action), slog.Any("error", err))
	}
}

func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

func dedupe(perms []Permission) []Permission {
	seen := make(map[Permission]struct{}, len(perms))
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		p = Permission(strings.TrimSpace(string(p)))
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
