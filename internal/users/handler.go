package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/counsel-pm/counsel/internal/platform/httpx"
	"github.com/counsel-pm/counsel/internal/rbac"
)

// Handler manages membership endpoints under /firms/{firmID}/members.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: mw, validator: validator.New()}
}

// MountRoutes registers member routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAction(rbac.ActionMembersList)).Get("/", h.listMembers)
	r.With(h.rbac.RequireAction(rbac.ActionMembersInvite)).Post("/", h.invite)
	r.With(h.rbac.RequireAction(rbac.ActionMembersAssignRole)).Put("/{userID}/role", h.assignRole)
	r.With(h.rbac.RequireAction(rbac.ActionMembersRevoke)).Delete("/{userID}", h.revoke)
}

type inviteRequest struct {
	Email  string `json:"email" validate:"required,email"`
	Name   string `json:"name" validate:"max=200"`
	RoleID int64  `json:"role_id" validate:"required,gt=0"`
}

type assignRoleRequest struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	firmID, _ := rbac.TargetFirmID(r)
	members, err := h.service.ListMembers(r.Context(), firmID)
	if err != nil {
		h.logger.Error("list members failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if members == nil {
		members = []Member{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"members": members})
}

func (h *Handler) invite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	firmID, _ := rbac.TargetFirmID(r)
	member, err := h.service.Invite(r.Context(), actor(r), firmID, InviteInput{Email: req.Email, Name: req.Name, RoleID: req.RoleID})
	if err != nil {
		h.fail(w, "invite member failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, member)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.PathID(r, "userID")
	if err != nil {
		httpx.BadID(w, "user id")
		return
	}
	var req assignRoleRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	firmID, _ := rbac.TargetFirmID(r)
	if err := h.service.AssignRole(r.Context(), actor(r), firmID, userID, req.RoleID); err != nil {
		h.fail(w, "assign role failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.PathID(r, "userID")
	if err != nil {
		httpx.BadID(w, "user id")
		return
	}
	firmID, _ := rbac.TargetFirmID(r)
	if err := h.service.Revoke(r.Context(), actor(r).UserID(), firmID, userID); err != nil {
		h.fail(w, "revoke membership failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actor(r *http.Request) rbac.Principal {
	p, _ := rbac.PrincipalFromContext(r.Context())
	return p
}
