package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/counsel-pm/counsel/internal/platform/httpx"
	"github.com/counsel-pm/counsel/internal/rbac"
	"github.com/counsel-pm/counsel/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	guard      *rbac.Guard
	rbac       rbac.Middleware
	validator  *validator.Validate
	loginLimit int
}

// NewHandler constructs a Handler instance. loginLimit caps login attempts per
// client IP per minute.
func NewHandler(logger *slog.Logger, service *Service, guard *rbac.Guard, mw rbac.Middleware, loginLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loginLimit <= 0 {
		loginLimit = 10
	}
	return &Handler{
		logger:     logger,
		service:    service,
		guard:      guard,
		rbac:       mw,
		validator:  validator.New(),
		loginLimit: loginLimit,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.LimitByIP(h.loginLimit, time.Minute)).Post("/auth/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Authenticate)
		r.Post("/auth/logout", h.handleLogout)
		r.Get("/me", h.handleMe)
		r.Post("/me/firm", h.handleSelectFirm)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	IssuedToken
	User principalView `json:"user"`
}

type selectFirmRequest struct {
	FirmID int64 `json:"firm_id" validate:"required,gt=0"`
}

type principalView struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	Email        string         `json:"email"`
	Class        string         `json:"class"`
	ActiveFirmID int64          `json:"active_firm_id,omitempty"`
	Firms        []rbac.FirmRef `json:"firms"`
	Permissions  []string       `json:"permissions"`
	Actions      []string       `json:"visible_actions"`
}

func (h *Handler) viewOf(p rbac.Principal) principalView {
	return principalView{
		ID:           p.UserID(),
		Name:         p.Name(),
		Email:        p.Email(),
		Class:        string(p.Class()),
		ActiveFirmID: p.ActiveFirmID(),
		Firms:        p.Firms(),
		Permissions:  p.Permissions().Strings(),
		Actions:      h.guard.VisibleActions(p),
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	user, token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("login", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("login", slog.Int64("user_id", user.ID))
	httpx.JSON(w, http.StatusOK, loginResponse{
		IssuedToken: token,
		User: principalView{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
		},
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := rbac.BearerToken(r)
	if err := h.service.Logout(r.Context(), token); err != nil {
		h.logger.Warn("revoke token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrInvalidCredentials)
		return
	}
	httpx.JSON(w, http.StatusOK, h.viewOf(p))
}

func (h *Handler) handleSelectFirm(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrInvalidCredentials)
		return
	}
	var req selectFirmRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	switched, token, err := h.service.SelectFirm(r.Context(), p, req.FirmID)
	if err != nil {
		if errors.Is(err, shared.ErrNotAMember) {
			h.logger.Info("firm switch refused", slog.Int64("user_id", p.UserID()), slog.Int64("firm_id", req.FirmID))
		} else {
			h.logger.Error("firm switch", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{IssuedToken: token, User: h.viewOf(switched)})
}
