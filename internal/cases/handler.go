package cases

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/counsel-pm/counsel/internal/platform/httpx"
	"github.com/counsel-pm/counsel/internal/rbac"
	"github.com/counsel-pm/counsel/internal/shared"
)

// IdempotencyKeys claims and releases client request keys.
type IdempotencyKeys interface {
	CheckAndInsert(ctx context.Context, scope, key string) error
	Release(ctx context.Context, scope, key string) error
}

// Handler serves the case register under /firms/{firmID}/cases.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
	keys      IdempotencyKeys
}

func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: mw, validator: validator.New()}
}

// WithIdempotency makes case creation honour the Idempotency-Key header.
func (h *Handler) WithIdempotency(keys IdempotencyKeys) *Handler {
	h.keys = keys
	return h
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAction(rbac.ActionCasesList)).Get("/", h.list)
	r.With(h.rbac.RequireAction(rbac.ActionCasesCreate)).Post("/", h.create)
	r.With(h.rbac.RequireAction(rbac.ActionCasesUpdateStatus)).Patch("/{caseID}/status", h.updateStatus)
}

// list serves both read_case and view_case_status holders; the latter only
// get reference and status.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	firmID, _ := rbac.TargetFirmID(r)
	filters := httpx.ListParams(r)
	items, total, err := h.service.List(r.Context(), firmID, filters)
	if err != nil {
		h.logger.Error("list cases failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	full := h.rbac.Guard.Can(p, shared.PermReadCase)
	out := make([]Case, 0, len(items))
	for _, c := range items {
		if !full {
			c = c.StatusOnly()
		}
		out = append(out, c)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"cases":      out,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if !httpx.Bind(w, r, h.validator, &in) {
		return
	}
	firmID, _ := rbac.TargetFirmID(r)
	key := strings.TrimSpace(r.Header.Get(shared.IdempotencyHeader))
	scope := fmt.Sprintf("firm:%d:%s", firmID, rbac.ActionCasesCreate)
	if key != "" && h.keys != nil {
		if err := h.keys.CheckAndInsert(r.Context(), scope, key); err != nil {
			h.fail(w, "claim idempotency key failed", err)
			return
		}
	}
	c, err := h.service.Open(r.Context(), actorID(r), firmID, in)
	if err != nil {
		if key != "" && h.keys != nil {
			if rerr := h.keys.Release(r.Context(), scope, key); rerr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", rerr))
			}
		}
		h.fail(w, "create case failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "caseID")
	if err != nil {
		httpx.BadID(w, "case id")
		return
	}
	var in StatusInput
	if !httpx.Bind(w, r, h.validator, &in) {
		return
	}
	firmID, _ := rbac.TargetFirmID(r)
	c, err := h.service.ChangeStatus(r.Context(), actorID(r), firmID, id, in.Status)
	if err != nil {
		h.fail(w, "update case status failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
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
