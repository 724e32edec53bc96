package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/counsel-pm/counsel/internal/platform/httpx"
	"github.com/counsel-pm/counsel/internal/shared"
)

// FirmParam is the chi URL parameter naming the target firm.
const FirmParam = "firmID"

// DecisionObserver receives one call per guarded request.
type DecisionObserver interface {
	ObserveDecision(action, outcome, reason string)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Resolver *Resolver
	Guard    *Guard
	Logger   *slog.Logger
	Observer DecisionObserver
}

// Authenticate resolves the bearer token into a Principal and stores it in the
// request context. Requests without a valid credential get 401.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			httpx.RespondError(w, shared.ErrInvalidCredentials)
			return
		}
		p, err := m.Resolver.Resolve(r.Context(), token)
		if err != nil {
			if !errors.Is(err, shared.ErrInvalidCredentials) {
				m.logger().Error("rbac resolve principal", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

// RequireAction gates the handler behind the action's scope and permission
// checks. Firm-scoped actions read the target firm from the firmID URL param.
func (m Middleware) RequireAction(actionID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok && !m.Guard.IsPublic(actionID) {
				httpx.RespondError(w, shared.ErrInvalidCredentials)
				return
			}
			firmID, err := TargetFirmID(r)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest), "invalid firm id")
				return
			}
			decision, err := m.Guard.Check(r.Context(), p, actionID, firmID)
			if err != nil {
				m.logger().Error("rbac guard", slog.String("action", actionID), slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			m.observe(actionID, decision)
			if !decision.Allowed {
				m.logger().Info("rbac denied",
					slog.String("action", actionID),
					slog.String("reason", string(decision.Reason)),
					slog.Int64("user_id", p.UserID()),
					slog.Int64("firm_id", firmID))
				httpx.RespondError(w, decision.Err())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// TargetFirmID parses the firmID URL param. Routes without it yield zero.
func TargetFirmID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, FirmParam))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("rbac: invalid firm id")
	}
	return id, nil
}

func (m Middleware) observe(actionID string, d Decision) {
	if m.Observer == nil {
		return
	}
	m.Observer.ObserveDecision(actionID, d.Outcome(), string(d.Reason))
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
