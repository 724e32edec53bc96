// Package rbactest provides an in-memory implementation of the rbac ports
// for handler tests in other packages.
package rbactest

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/counsel-pm/counsel/internal/rbac"
	"github.com/counsel-pm/counsel/internal/shared"
)

// Store implements rbac.CredentialVerifier, rbac.UserStore,
// rbac.MembershipStore, rbac.RoleStore and shared.AuditRecorder in memory.
// Tokens are opaque strings registered with AddToken.
type Store struct {
	mu          sync.Mutex
	tokens      map[string]rbac.Credential
	users       map[int64]rbac.User
	memberships map[int64][]rbac.Membership
	roles       map[int64]rbac.Role
	nextRoleID  int64
	audits      []shared.AuditLog
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		tokens:      make(map[string]rbac.Credential),
		users:       make(map[int64]rbac.User),
		memberships: make(map[int64][]rbac.Membership),
		roles:       make(map[int64]rbac.Role),
		nextRoleID:  100,
	}
}

func (s *Store) VerifyCredential(ctx context.Context, token string) (rbac.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.tokens[token]
	if !ok {
		return rbac.Credential{}, shared.ErrInvalidCredentials
	}
	return cred, nil
}

func (s *Store) GetUser(ctx context.Context, userID int64) (rbac.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return rbac.User{}, shared.ErrNotFound
	}
	return u, nil
}

func (s *Store) LoadMemberships(ctx context.Context, userID int64) ([]rbac.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rbac.Membership(nil), s.memberships[userID]...), nil
}

func (s *Store) GetMembership(ctx context.Context, userID, firmID int64) (rbac.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships[userID] {
		if m.FirmID == firmID {
			return m, nil
		}
	}
	return rbac.Membership{}, shared.ErrNotFound
}

func (s *Store) LoadRole(ctx context.Context, roleID int64) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListRoles(ctx context.Context, firmID int64) ([]rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []rbac.Role
	for _, r := range s.roles {
		if r.FirmID == firmID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateRole(ctx context.Context, role rbac.Role) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role.ID = s.nextRoleID
	s.nextRoleID++
	s.roles[role.ID] = role
	return role, nil
}

func (s *Store) ReplaceRolePermissions(ctx context.Context, roleID int64, perms []rbac.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID]
	if !ok {
		return shared.ErrNotFound
	}
	r.Permissions = rbac.NewPermissionSet(perms...)
	s.roles[roleID] = r
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID, replacementRoleID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return 0, shared.ErrNotFound
	}
	var moved int64
	for _, list := range s.memberships {
		for i := range list {
			if list[i].RoleID == roleID {
				list[i].RoleID = replacementRoleID
				moved++
			}
		}
	}
	delete(s.roles, roleID)
	return moved, nil
}

func (s *Store) Record(ctx context.Context, log shared.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, log)
	return nil
}

// AddUser registers an active user.
func (s *Store) AddUser(id int64, name string, superAdmin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = rbac.User{ID: id, Name: name, Email: name + "@firm.test", IsSuperAdmin: superAdmin, IsActive: true}
}

// AddToken maps token to a credential for userID with firmID selected.
func (s *Store) AddToken(token string, userID, firmID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = rbac.Credential{UserID: userID, TokenID: token, FirmID: firmID}
}

// AddRole stores a role and returns its id. firmID zero makes a platform role.
func (s *Store) AddRole(firmID int64, name string, perms ...string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextRoleID
	s.nextRoleID++
	set := make([]rbac.Permission, len(perms))
	for i, p := range perms {
		set[i] = rbac.Permission(p)
	}
	s.roles[id] = rbac.Role{ID: id, FirmID: firmID, Name: name, Permissions: rbac.NewPermissionSet(set...)}
	return id
}

// Role returns the stored role and whether it exists.
func (s *Store) Role(id int64) (rbac.Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	return r, ok
}

// AddMembership adds or replaces the membership of userID in firmID.
func (s *Store) AddMembership(userID, firmID, roleID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.memberships[userID]
	for i := range list {
		if list[i].FirmID == firmID {
			list[i].RoleID = roleID
			return
		}
	}
	s.memberships[userID] = append(list, rbac.Membership{UserID: userID, FirmID: firmID, FirmName: "Firm", RoleID: roleID})
}

// RemoveMembership deletes the membership of userID in firmID and reports
// whether it existed.
func (s *Store) RemoveMembership(userID, firmID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.memberships[userID]
	for i := range list {
		if list[i].FirmID == firmID {
			s.memberships[userID] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Members lists the memberships held in firmID ordered by user id.
func (s *Store) Members(firmID int64) []rbac.Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []rbac.Membership
	for _, list := range s.memberships {
		for _, m := range list {
			if m.FirmID == firmID {
				out = append(out, m)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Users returns every registered user ordered by id.
func (s *Store) Users() []rbac.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rbac.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Audits returns the recorded audit entries.
func (s *Store) Audits() []shared.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shared.AuditLog(nil), s.audits...)
}

// Harness bundles the rbac services over a Store.
type Harness struct {
	Store      *Store
	Roles      *rbac.RoleService
	Resolver   *rbac.Resolver
	Guard      *rbac.Guard
	Middleware rbac.Middleware
}

// NewHarness wires the rbac services with a discarding logger.
func NewHarness() *Harness {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewStore()
	roles := rbac.NewRoleService(store, nil, store, logger)
	resolver := rbac.NewResolver(rbac.ResolverConfig{
		Credentials: store,
		Users:       store,
		Memberships: store,
		Roles:       roles,
		Logger:      logger,
	})
	guard := rbac.NewGuard(rbac.NewEngine(nil, logger), rbac.NewScopeResolver(store, logger), rbac.DefaultActions(), logger)
	return &Harness{
		Store:      store,
		Roles:      roles,
		Resolver:   resolver,
		Guard:      guard,
		Middleware: rbac.Middleware{Resolver: resolver, Guard: guard, Logger: logger},
	}
}

// Tenant registers userID as a member of firmID holding a fresh role with
// perms, reachable through token. It returns the role id.
func (h *Harness) Tenant(token string, userID, firmID int64, perms ...string) int64 {
	roleID := h.Store.AddRole(firmID, token+"-role", perms...)
	h.Store.AddUser(userID, token, false)
	h.Store.AddMembership(userID, firmID, roleID)
	h.Store.AddToken(token, userID, firmID)
	return roleID
}

// SuperAdmin registers a platform administrator reachable through token.
func (h *Harness) SuperAdmin(token string, userID int64) {
	h.Store.AddUser(userID, token, true)
	h.Store.AddToken(token, userID, 0)
}
