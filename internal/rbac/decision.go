package rbac

import (
	"log/slog"

	"github.com/counsel-pm/counsel/internal/shared"
)

// Reason explains a denial.
type Reason string

const (
	ReasonMissingPermission Reason = "missing_permission"
	ReasonNoActiveFirm      Reason = "no_active_firm"
	ReasonNotAMember        Reason = "not_a_member"
	ReasonRoleNotFound      Reason = "role_not_found"
)

// Decision is the outcome of an authorization check. Denials always carry a
// Reason; Public marks an allow that came from an undeclared permission list.
type Decision struct {
	Allowed bool
	Reason  Reason
	Public  bool
}

// Allow returns an allowing decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a denying decision with the given reason.
func Deny(reason Reason) Decision { return Decision{Reason: reason} }

// Err maps a denial to the matching sentinel from package shared. Allowing
// decisions return nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonNoActiveFirm:
		return shared.ErrNoActiveFirm
	case ReasonNotAMember:
		return shared.ErrNotAMember
	case ReasonRoleNotFound:
		return shared.ErrRoleNotFound
	default:
		return shared.ErrMissingPermission
	}
}

// Outcome returns "allow" or "deny" for metrics labels.
func (d Decision) Outcome() string {
	if d.Allowed {
		return "allow"
	}
	return "deny"
}

// Engine decides whether a principal holds a required permission. Multiple
// required permissions are alternatives: holding any one of them is enough.
type Engine struct {
	catalog *Catalog
	logger  *slog.Logger
}

// NewEngine constructs an Engine. A nil catalog uses DefaultCatalog.
func NewEngine(catalog *Catalog, logger *slog.Logger) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{catalog: catalog, logger: logger}
}

// Catalog returns the catalog the engine validates against.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Authorize evaluates required against the principal's resolved permissions.
// An empty required list allows and is logged; identifiers outside the catalog
// never grant access.
func (e *Engine) Authorize(p Principal, required ...Permission) Decision {
	if len(required) == 0 {
		e.logger.Warn("rbac authorize without declared permission",
			slog.Int64("user_id", p.UserID()))
		return Decision{Allowed: true, Public: true}
	}
	known := e.catalog.Known(required)
	if len(known) < len(required) {
		e.logger.Error("rbac authorize with unknown permission",
			slog.Any("required", required))
	}
	if len(known) == 0 || p.isZero() {
		return Deny(ReasonMissingPermission)
	}
	if p.IsSuperAdmin() {
		return Allow()
	}
	if !p.HasActiveFirm() {
		return Deny(ReasonNoActiveFirm)
	}
	if p.RoleMissing() {
		return Deny(ReasonRoleNotFound)
	}
	for _, perm := range known {
		if p.Has(perm) {
			return Allow()
		}
	}
	return Deny(ReasonMissingPermission)
}

// HasPermission is the boolean form of Authorize used for visibility checks.
func (e *Engine) HasPermission(p Principal, required ...Permission) bool {
	return e.Authorize(p, required...).Allowed
}
