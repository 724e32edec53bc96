package firms

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/counsel-pm/counsel/internal/rbac"
	"github.com/counsel-pm/counsel/internal/shared"
)

// AdminRoleName names the role seeded into every new firm.
const AdminRoleName = "Administrator"

// platformOnly lists catalog permissions that never belong in a firm role.
var platformOnly = map[rbac.Permission]struct{}{
	shared.PermCreateFirm: {},
	shared.PermDeleteFirm: {},
}

type Service struct {
	repo   Repository
	roles  *rbac.RoleService
	audit  shared.AuditRecorder
	logger *slog.Logger
}

func NewService(repo Repository, roles *rbac.RoleService, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, audit: audit, logger: logger}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Firm, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Firm, error) {
	if id <= 0 {
		return Firm{}, shared.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Create registers a firm and seeds its Administrator role holding every
// firm-level permission of the catalog. Both rows commit together or not at
// all.
func (s *Service) Create(ctx context.Context, actorID int64, form FirmForm) (Firm, rbac.Role, error) {
	firm := Firm{Code: strings.ToUpper(strings.TrimSpace(form.Code)), Name: strings.TrimSpace(form.Name)}
	if firm.Code == "" || firm.Name == "" {
		return Firm{}, rbac.Role{}, fmt.Errorf("%w: firm code and name are required", shared.ErrValidation)
	}
	perms := FirmPermissions(s.roles.Catalog())
	created, role, err := s.repo.CreateWithAdminRole(ctx, firm, rbac.Role{
		Name:        AdminRoleName,
		Description: "Full access within the firm",
		Permissions: rbac.NewPermissionSet(perms...),
	})
	if err != nil {
		return Firm{}, rbac.Role{}, err
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		FirmID:   created.ID,
		Action:   "firm.create",
		Entity:   "firm",
		EntityID: strconv.FormatInt(created.ID, 10),
		Meta:     map[string]any{"code": created.Code, "admin_role_id": role.ID},
	})
	return created, role, nil
}

func (s *Service) Update(ctx context.Context, actorID, id int64, form UpdateForm) (Firm, error) {
	name := strings.TrimSpace(form.Name)
	if name == "" {
		return Firm{}, fmt.Errorf("%w: firm name is required", shared.ErrValidation)
	}
	firm, err := s.repo.Update(ctx, id, name)
	if err != nil {
		return Firm{}, err
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		FirmID:   id,
		Action:   "firm.update",
		Entity:   "firm",
		EntityID: strconv.FormatInt(id, 10),
	})
	return firm, nil
}

// FirmPermissions returns the catalog minus platform-only permissions.
func FirmPermissions(catalog *rbac.Catalog) []rbac.Permission {
	var out []rbac.Permission
	for _, p := range catalog.All() {
		if _, ok := platformOnly[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("firms audit record", slog.String("action", log.Action), slog.Any("error", err))
	}
}
