package roles

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/counsel-pm/counsel/internal/platform/httpx"
	"github.com/counsel-pm/counsel/internal/rbac"
	"github.com/counsel-pm/counsel/internal/shared"
)

// Handler manages role authoring endpoints under /firms/{firmID}/roles.
type Handler struct {
	logger    *slog.Logger
	service   *rbac.RoleService
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *rbac.RoleService, mw rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: mw, validator: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAction(rbac.ActionRolesList)).Get("/", h.listRoles)
	r.With(h.rbac.RequireAction(rbac.ActionRolesCreate)).Post("/", h.createRole)
	r.With(h.rbac.RequireAction(rbac.ActionRolesUpdate)).Put("/{roleID}/permissions", h.setPermissions)
	r.With(h.rbac.RequireAction(rbac.ActionRolesDelete)).Delete("/{roleID}", h.deleteRole)
}

// RoleView is the JSON shape of a role.
type RoleView struct {
	ID          int64     `json:"id"`
	FirmID      int64     `json:"firm_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func viewOf(role rbac.Role) RoleView {
	return RoleView{
		ID:          role.ID,
		FirmID:      role.FirmID,
		Name:        role.Name,
		Description: role.Description,
		Permissions: role.Permissions.Strings(),
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=500"`
	Permissions []string `json:"permissions" validate:"dive,required"`
}

type setPermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"dive,required"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	firmID, _ := rbac.TargetFirmID(r)
	roles, err := h.service.ListRoles(r.Context(), firmID)
	if err != nil {
		h.logger.Error("list roles failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]RoleView, len(roles))
	for i, role := range roles {
		out[i] = viewOf(role)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	firmID, _ := rbac.TargetFirmID(r)
	role, err := h.service.CreateRole(r.Context(), actor(r).UserID(), rbac.CreateRoleInput{
		FirmID:      firmID,
		Name:        req.Name,
		Description: req.Description,
		Permissions: toPermissions(req.Permissions),
	})
	if err != nil {
		h.fail(w, "create role failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, viewOf(role))
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := httpx.PathID(r, "roleID")
	if err != nil {
		httpx.BadID(w, "role id")
		return
	}
	var req setPermissionsRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	firmID, _ := rbac.TargetFirmID(r)
	role, err := h.service.SetRolePermissions(r.Context(), actor(r), firmID, roleID, toPermissions(req.Permissions))
	if err != nil {
		h.fail(w, "update role permissions failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewOf(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := httpx.PathID(r, "roleID")
	if err != nil {
		httpx.BadID(w, "role id")
		return
	}
	replacement, err := httpx.QueryID(r, "replacement_role_id")
	if err != nil {
		httpx.BadID(w, "replacement role id")
		return
	}
	firmID, _ := rbac.TargetFirmID(r)
	if err := h.service.DeleteRole(r.Context(), actor(r).UserID(), firmID, roleID, replacement); err != nil {
		h.fail(w, "delete role failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	} else {
		h.logger.Info(msg, slog.String("reason", shared.UserSafeMessage(err)))
	}
	httpx.RespondError(w, err)
}

func actor(r *http.Request) rbac.Principal {
	p, _ := rbac.PrincipalFromContext(r.Context())
	return p
}

func toPermissions(ids []string) []rbac.Permission {
	out := make([]rbac.Permission, len(ids))
	for i, id := range ids {
		out[i] = rbac.Permission(id)
	}
	return out
}
