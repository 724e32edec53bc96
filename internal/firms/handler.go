package firms

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/counsel-pm/counsel/internal/platform/httpx"
	"github.com/counsel-pm/counsel/internal/rbac"
	"github.com/counsel-pm/counsel/internal/shared"
)

type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: mw, validator: validator.New()}
}

// MountRoutes registers firm routes. Listing and creation are platform
// actions; reading and renaming are scoped to the firm in the path.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAction(rbac.ActionFirmsList)).Get("/firms", h.List)
	r.With(h.rbac.RequireAction(rbac.ActionFirmsCreate)).Post("/firms", h.Create)
	r.With(h.rbac.RequireAction(rbac.ActionFirmsView)).Get("/firms/{firmID}", h.Show)
	r.With(h.rbac.RequireAction(rbac.ActionFirmsUpdate)).Patch("/firms/{firmID}", h.Update)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters := httpx.ListParams(r)
	firms, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list firms failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if firms == nil {
		firms = []Firm{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"firms":      firms,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, _ := rbac.TargetFirmID(r)
	firm, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get firm failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, firm)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var form FirmForm
	if !httpx.Bind(w, r, h.validator, &form) {
		return
	}
	firm, role, err := h.service.Create(r.Context(), actorID(r), form)
	if err != nil {
		h.fail(w, "create firm failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"firm":          firm,
		"admin_role_id": role.ID,
	})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var form UpdateForm
	if !httpx.Bind(w, r, h.validator, &form) {
		return
	}
	id, _ := rbac.TargetFirmID(r)
	firm, err := h.service.Update(r.Context(), actorID(r), id, form)
	if err != nil {
		h.fail(w, "update firm failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, firm)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorID(r *http.Request) int64 {
	p, _ := rbac.PrincipalFromContext(r.Context())
	return p.UserID()
}
