package rbac

import (
	"fmt"
	"sort"

	"github.com/counsel-pm/counsel/internal/shared"
)

// ActionScope tells the Guard how an action is gated.
type ActionScope int

const (
	// ScopeFirm actions target one firm: scope check, then permission check.
	ScopeFirm ActionScope = iota
	// ScopePlatform actions are reserved to Super Admin principals.
	ScopePlatform
	// ScopePublic actions declare no permission and are always allowed.
	ScopePublic
)

func (s ActionScope) String() string {
	switch s {
	case ScopePlatform:
		return "platform"
	case ScopePublic:
		return "public"
	default:
		return "firm"
	}
}

// Action identifiers. Each maps to exactly one entry of DefaultActions.
const (
	ActionCatalogView       = "catalog.view"
	ActionFirmsList         = "firms.list"
	ActionFirmsCreate       = "firms.create"
	ActionFirmsView         = "firms.view"
	ActionFirmsUpdate       = "firms.update"
	ActionRolesList         = "roles.list"
	ActionRolesCreate       = "roles.create"
	ActionRolesUpdate       = "roles.update"
	ActionRolesDelete       = "roles.delete"
	ActionMembersList       = "members.list"
	ActionMembersInvite     = "members.invite"
	ActionMembersAssignRole = "members.assign_role"
	ActionMembersRevoke     = "members.revoke"
	ActionCasesList         = "cases.list"
	ActionCasesCreate       = "cases.create"
	ActionCasesUpdateStatus = "cases.update_status"
	ActionAuditList         = "audit.list"
	ActionAuditExport       = "audit.export"
)

// Action declares the permissions accepted for one operation. AnyOf lists
// alternatives: holding any one of them is enough.
type Action struct {
	ID    string
	Scope ActionScope
	AnyOf []Permission
}

// ActionRegistry is the single mapping from action to required permissions,
// shared by the HTTP guard and the visibility listing.
type ActionRegistry struct {
	catalog *Catalog
	actions map[string]Action
}

// NewActionRegistry constructs an empty registry validated against catalog.
func NewActionRegistry(catalog *Catalog) *ActionRegistry {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &ActionRegistry{catalog: catalog, actions: make(map[string]Action)}
}

// Register adds an action. Non-public actions must declare at least one
// catalog permission.
func (r *ActionRegistry) Register(a Action) error {
	if a.ID == "" {
		return fmt.Errorf("rbac: action id required")
	}
	if _, ok := r.actions[a.ID]; ok {
		return fmt.Errorf("rbac: action %q already registered", a.ID)
	}
	if a.Scope != ScopePublic && len(a.AnyOf) == 0 {
		return fmt.Errorf("rbac: action %q declares no permission and is not public", a.ID)
	}
	if err := r.catalog.Validate(a.AnyOf); err != nil {
		return fmt.Errorf("rbac: action %q: %w", a.ID, err)
	}
	a.AnyOf = append([]Permission(nil), a.AnyOf...)
	r.actions[a.ID] = a
	return nil
}

// MustRegister registers actions and panics on the first invalid one.
func (r *ActionRegistry) MustRegister(actions ...Action) *ActionRegistry {
	for _, a := range actions {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup returns the action registered under id.
func (r *ActionRegistry) Lookup(id string) (Action, bool) {
	a, ok := r.actions[id]
	return a, ok
}

// All returns the registered actions sorted by id.
func (r *ActionRegistry) All() []Action {
	out := make([]Action, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func permissionList(ids ...string) []Permission {
	out := make([]Permission, len(ids))
	for i, id := range ids {
		out[i] = Permission(id)
	}
	return out
}

// DefaultActions returns the action table served by the HTTP API.
func DefaultActions() *ActionRegistry {
	return NewActionRegistry(DefaultCatalog()).MustRegister(
		Action{ID: ActionCatalogView, Scope: ScopePublic},

		Action{ID: ActionFirmsList, Scope: ScopePlatform, AnyOf: permissionList(shared.PermReadFirm)},
		Action{ID: ActionFirmsCreate, Scope: ScopePlatform, AnyOf: permissionList(shared.PermCreateFirm)},
		Action{ID: ActionFirmsView, AnyOf: permissionList(shared.PermReadFirm)},
		Action{ID: ActionFirmsUpdate, AnyOf: permissionList(shared.PermUpdateFirm)},

		Action{ID: ActionRolesList, AnyOf: permissionList(shared.PermReadRole, shared.PermCreateRole, shared.PermAssignRole)},
		Action{ID: ActionRolesCreate, AnyOf: permissionList(shared.PermCreateRole)},
		Action{ID: ActionRolesUpdate, AnyOf: permissionList(shared.PermUpdateRole)},
		Action{ID: ActionRolesDelete, AnyOf: permissionList(shared.PermDeleteRole)},

		Action{ID: ActionMembersList, AnyOf: permissionList(shared.PermReadUser, shared.PermAssignRole)},
		Action{ID: ActionMembersInvite, AnyOf: permissionList(shared.PermInviteUser)},
		Action{ID: ActionMembersAssignRole, AnyOf: permissionList(shared.PermAssignRole)},
		Action{ID: ActionMembersRevoke, AnyOf: permissionList(shared.PermRevokeMembership)},

		Action{ID: ActionCasesList, AnyOf: permissionList(shared.PermReadCase, shared.PermViewCaseStatus)},
		Action{ID: ActionCasesCreate, AnyOf: permissionList(shared.PermCreateCase)},
		Action{ID: ActionCasesUpdateStatus, AnyOf: permissionList(shared.PermUpdateCaseStatus)},

		Action{ID: ActionAuditList, AnyOf: permissionList(shared.PermReadRole, shared.PermReadUser)},
		Action{ID: ActionAuditExport, AnyOf: permissionList(shared.PermReadRole, shared.PermReadUser)},
	)
}
