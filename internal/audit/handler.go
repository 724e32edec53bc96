package audit

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/counsel-pm/counsel/internal/platform/httpx"
	"github.com/counsel-pm/counsel/internal/rbac"
)

const (
	exportRateLimit   = 10
	exportRateWindow  = time.Minute
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
	dateLayout        = "2006-01-02"
)

var errInvalidRange = errors.New("audit: invalid date range")

// Handler serves the audit trail under /firms/{firmID}/audit.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	now     func() time.Time
}

func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: mw, now: time.Now}
}

func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "export rate limit exceeded")
		}),
	)
	r.With(h.rbac.RequireAction(rbac.ActionAuditList)).Get("/", h.timeline)
	r.With(h.rbac.RequireAction(rbac.ActionAuditExport), limiter).Get("/export.csv", h.export)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest), err.Error())
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest), err.Error())
		return
	}
	entries, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit export failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	name := fmt.Sprintf("audit-firm-%d-%s.csv", filters.FirmID, filters.From.Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := WriteCSV(w, entries); err != nil {
		h.logger.Error("audit export write failed", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	firmID, _ := rbac.TargetFirmID(r)
	filters := TimelineFilters{
		FirmID:   firmID,
		Entity:   strings.TrimSpace(q.Get("entity")),
		Action:   strings.TrimSpace(q.Get("action")),
		Page:     httpx.QueryInt(r, "page", 1),
		PageSize: httpx.QueryInt(r, "page_size", defaultPageSize),
	}
	if raw := strings.TrimSpace(q.Get("actor")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return TimelineFilters{}, errors.New("invalid actor id")
		}
		filters.ActorID = id
	}

	to := h.now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		day, err := time.Parse(dateLayout, raw)
		if err != nil {
			return TimelineFilters{}, fmt.Errorf("%w: to must be YYYY-MM-DD", errInvalidRange)
		}
		to = day.Add(24 * time.Hour)
	}
	from := to.Add(-defaultDateRange)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		day, err := time.Parse(dateLayout, raw)
		if err != nil {
			return TimelineFilters{}, fmt.Errorf("%w: from must be YYYY-MM-DD", errInvalidRange)
		}
		from = day
	}
	if !from.Before(to) {
		return TimelineFilters{}, fmt.Errorf("%w: from is after to", errInvalidRange)
	}
	if to.Sub(from) > maxDateRangeHours*time.Hour {
		return TimelineFilters{}, fmt.Errorf("%w: at most 90 days", errInvalidRange)
	}
	filters.From, filters.To = from, to
	return filters, nil
}

// rateLimitKey buckets exports per user, falling back to the client address.
func rateLimitKey(r *http.Request) (string, error) {
	if p, ok := rbac.PrincipalFromContext(r.Context()); ok && p.UserID() > 0 {
		return "user:" + strconv.FormatInt(p.UserID(), 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
