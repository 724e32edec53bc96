package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/counsel-pm/counsel/internal/shared"
)

func TestGuardDeniesMissingPermission(t *testing.T) {
	f := newFixture(t)
	p := f.tenant(t, 1, 5, shared.PermReadCase)

	d, err := f.guard.Check(t.Context(), p, ActionCasesCreate, 5)
	require.NoError(t, err)
	assert.Equal(t, Deny(ReasonMissingPermission), d)

	d, err = f.guard.Check(t.Context(), p, ActionCasesList, 5)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestGuardChecksScopeBeforePermission(t *testing.T) {
	f := newFixture(t)
	p := f.tenant(t, 1, 5, shared.PermCreateCase)

	allowedElsewhere, err := f.guard.Check(t.Context(), p, ActionCasesCreate, 7)
	require.NoError(t, err)
	lackingElsewhere, err := f.guard.Check(t.Context(), p, ActionRolesDelete, 7)
	require.NoError(t, err)

	assert.Equal(t, Deny(ReasonNotAMember), allowedElsewhere)
	assert.Equal(t, allowedElsewhere, lackingElsewhere, "out-of-scope denials must not depend on the permission")
}

func TestGuardPlatformActions(t *testing.T) {
	f := newFixture(t)
	admin := f.superAdmin(t, 99)
	tenant := f.tenant(t, 1, 5, shared.PermCreateFirm, shared.PermReadFirm)

	d, err := f.guard.Check(t.Context(), admin, ActionFirmsCreate, 0)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = f.guard.Check(t.Context(), tenant, ActionFirmsCreate, 0)
	require.NoError(t, err)
	assert.Equal(t, Deny(ReasonMissingPermission), d)
}

func TestGuardSuperAdminFirmScopedWrite(t *testing.T) {
	f := newFixture(t)
	admin := f.superAdmin(t, 99)

	scope, err := f.scopes.ResolveScope(t.Context(), admin, 7)
	require.NoError(t, err)
	require.True(t, scope.Allowed)

	d, err := f.guard.Check(t.Context(), admin, ActionCasesCreate, 7)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestGuardNoActiveFirmUntilSwitch(t *testing.T) {
	f := newFixture(t)
	roleA := f.store.addRole(3, "associate", shared.PermReadCase)
	roleB := f.store.addRole(9, "associate", shared.PermReadCase)
	f.store.addUser(1, "lawyer", false)
	f.store.addMembership(1, 3, roleA)
	f.store.addMembership(1, 9, roleB)
	f.store.addToken("t", 1, 0)
	p, err := f.resolver.Resolve(t.Context(), "t")
	require.NoError(t, err)

	for _, firm := range []int64{3, 9} {
		d, err := f.guard.Check(t.Context(), p, ActionCasesList, firm)
		require.NoError(t, err)
		assert.Equal(t, Deny(ReasonNoActiveFirm), d)
	}

	switched, err := f.resolver.SwitchActiveFirm(t.Context(), p, 9)
	require.NoError(t, err)
	d, err := f.guard.Check(t.Context(), switched, ActionCasesList, 9)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestGuardRevokedMembership(t *testing.T) {
	f := newFixture(t)
	p := f.tenant(t, 1, 5, shared.PermCreateCase)
	f.store.revoke(1, 5)

	d, err := f.guard.Check(t.Context(), p, ActionCasesCreate, 5)
	require.NoError(t, err)
	assert.Equal(t, Deny(ReasonNotAMember), d)
}

func TestGuardPublicAndUnknownActions(t *testing.T) {
	f := newFixture(t)
	p := f.tenant(t, 1, 5)

	d, err := f.guard.Check(t.Context(), p, ActionCatalogView, 0)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.Public)

	d, err = f.guard.Check(t.Context(), p, "cases.shred", 5)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestVisibleActionsUseAnyOf(t *testing.T) {
	f := newFixture(t)
	p := f.tenant(t, 1, 5, shared.PermViewCaseStatus, shared.PermAssignRole)

	visible := f.guard.VisibleActions(p)
	assert.ElementsMatch(t, []string{
		ActionCatalogView,
		ActionCasesList,
		ActionRolesList,
		ActionMembersList,
		ActionMembersAssignRole,
	}, visible)

	for _, id := range visible {
		d, err := f.guard.Check(t.Context(), p, id, 5)
		require.NoError(t, err)
		assert.True(t, d.Allowed, id)
	}

	admin := f.superAdmin(t, 99)
	assert.Len(t, f.guard.VisibleActions(admin), len(DefaultActions().All()))
}

func TestActionRegistryValidation(t *testing.T) {
	r := NewActionRegistry(DefaultCatalog())

	assert.Error(t, r.Register(Action{}))
	assert.Error(t, r.Register(Action{ID: "cases.archive"}))
	assert.ErrorIs(t, r.Register(Action{ID: "cases.archive", AnyOf: []Permission{"archive_case"}}), shared.ErrInvalidPermission)
	require.NoError(t, r.Register(Action{ID: "cases.archive", AnyOf: []Permission{shared.PermUpdateCase}}))
	assert.Error(t, r.Register(Action{ID: "cases.archive", AnyOf: []Permission{shared.PermUpdateCase}}))
	assert.NoError(t, r.Register(Action{ID: "ping", Scope: ScopePublic}))

	assert.Panics(t, func() {
		NewActionRegistry(nil).MustRegister(Action{ID: "broken"})
	})
	assert.NotPanics(t, func() { DefaultActions() })
}
