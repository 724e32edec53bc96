package rbac

import (
	"context"
	"log/slog"
)

// Guard gates actions: it looks the action up, checks tenant scope, then
// permissions. Scope always runs first so out-of-scope callers learn nothing
// about which permission an action needs.
type Guard struct {
	engine  *Engine
	scopes  *ScopeResolver
	actions *ActionRegistry
	logger  *slog.Logger
}

// NewGuard constructs a Guard.
func NewGuard(engine *Engine, scopes *ScopeResolver, actions *ActionRegistry, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{engine: engine, scopes: scopes, actions: actions, logger: logger}
}

// Actions returns the registry the guard consults.
func (g *Guard) Actions() *ActionRegistry {
	return g.actions
}

// IsPublic reports whether actionID is registered as a public action. Public
// actions may run without a resolved principal.
func (g *Guard) IsPublic(actionID string) bool {
	a, ok := g.actions.Lookup(actionID)
	return ok && a.Scope == ScopePublic
}

// Check decides whether p may run actionID against targetFirmID. targetFirmID
// is ignored for public and platform actions.
func (g *Guard) Check(ctx context.Context, p Principal, actionID string, targetFirmID int64) (Decision, error) {
	action, ok := g.actions.Lookup(actionID)
	if !ok {
		g.logger.Error("rbac unknown action", slog.String("action", actionID))
		return Deny(ReasonMissingPermission), nil
	}
	switch action.Scope {
	case ScopePublic:
		g.logger.Info("rbac public action", slog.String("action", actionID), slog.Int64("user_id", p.UserID()))
		return Decision{Allowed: true, Public: true}, nil
	case ScopePlatform:
		if !p.IsSuperAdmin() {
			return Deny(ReasonMissingPermission), nil
		}
		return g.engine.Authorize(p, action.AnyOf...), nil
	default:
		scope, err := g.scopes.ResolveScope(ctx, p, targetFirmID)
		if err != nil {
			return Decision{}, err
		}
		if !scope.Allowed {
			return scope, nil
		}
		return g.engine.Authorize(p, action.AnyOf...), nil
	}
}

// VisibleActions lists the action ids p would be offered in the active firm,
// using the same any-of evaluation as Check. It reads only the snapshot; the
// server-side Check stays authoritative.
func (g *Guard) VisibleActions(p Principal) []string {
	var out []string
	for _, a := range g.actions.All() {
		switch a.Scope {
		case ScopePublic:
			out = append(out, a.ID)
		case ScopePlatform:
			if p.IsSuperAdmin() && g.engine.HasPermission(p, a.AnyOf...) {
				out = append(out, a.ID)
			}
		default:
			if g.engine.HasPermission(p, a.AnyOf...) {
				out = append(out, a.ID)
			}
		}
	}
	return out
}

// Can reports whether p holds any of perms in its active firm. Handlers use it
// to shape responses after Check has already admitted the request.
func (g *Guard) Can(p Principal, perms ...Permission) bool {
	return g.engine.HasPermission(p, perms...)
}
