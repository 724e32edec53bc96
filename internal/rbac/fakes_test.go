package rbac

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/counsel-pm/counsel/internal/shared"
)

// memStore is an in-memory implementation of every rbac port.
type memStore struct {
	mu          sync.Mutex
	tokens      map[string]Credential
	users       map[int64]User
	memberships map[int64][]Membership
	roles       map[int64]Role
	nextRoleID  int64
	createErr   error
	audits      []shared.AuditLog
}

func newMemStore() *memStore {
	return &memStore{
		tokens:      make(map[string]Credential),
		users:       make(map[int64]User),
		memberships: make(map[int64][]Membership),
		roles:       make(map[int64]Role),
		nextRoleID:  1,
	}
}

func (s *memStore) VerifyCredential(ctx context.Context, token string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.tokens[token]
	if !ok {
		return Credential{}, shared.ErrInvalidCredentials
	}
	return cred, nil
}

func (s *memStore) GetUser(ctx context.Context, userID int64) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (s *memStore) LoadMemberships(ctx context.Context, userID int64) ([]Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Membership, len(s.memberships[userID]))
	copy(out, s.memberships[userID])
	return out, nil
}

func (s *memStore) GetMembership(ctx context.Context, userID, firmID int64) (Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships[userID] {
		if m.FirmID == firmID {
			return m, nil
		}
	}
	return Membership{}, shared.ErrNotFound
}

func (s *memStore) LoadRole(ctx context.Context, roleID int64) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return r, nil
}

func (s *memStore) ListRoles(ctx context.Context, firmID int64) ([]Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Role
	for _, r := range s.roles {
		if r.FirmID == firmID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) CreateRole(ctx context.Context, role Role) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return Role{}, s.createErr
	}
	role.ID = s.nextRoleID
	s.nextRoleID++
	s.roles[role.ID] = role
	return role, nil
}

func (s *memStore) ReplaceRolePermissions(ctx context.Context, roleID int64, perms []Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID]
	if !ok {
		return shared.ErrNotFound
	}
	r.Permissions = NewPermissionSet(perms...)
	s.roles[roleID] = r
	return nil
}

func (s *memStore) DeleteRole(ctx context.Context, roleID, replacementRoleID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return 0, shared.ErrNotFound
	}
	var moved int64
	for userID, list := range s.memberships {
		for i := range list {
			if list[i].RoleID == roleID {
				list[i].RoleID = replacementRoleID
				moved++
			}
		}
		s.memberships[userID] = list
	}
	delete(s.roles, roleID)
	return moved, nil
}

func (s *memStore) Record(ctx context.Context, log shared.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, log)
	return nil
}

func (s *memStore) addUser(id int64, name string, superAdmin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = User{ID: id, Name: name, Email: name + "@firm.test", IsSuperAdmin: superAdmin, IsActive: true}
}

func (s *memStore) addToken(token string, userID, firmID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = Credential{UserID: userID, TokenID: token, FirmID: firmID}
}

func (s *memStore) addRole(firmID int64, name string, perms ...string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextRoleID
	s.nextRoleID++
	s.roles[id] = Role{ID: id, FirmID: firmID, Name: name, Permissions: NewPermissionSet(permissionList(perms...)...)}
	return id
}

func (s *memStore) addMembership(userID, firmID, roleID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[userID] = append(s.memberships[userID], Membership{UserID: userID, FirmID: firmID, FirmName: "Firm", RoleID: roleID})
}

func (s *memStore) revoke(userID, firmID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.memberships[userID][:0]
	for _, m := range s.memberships[userID] {
		if m.FirmID != firmID {
			list = append(list, m)
		}
	}
	s.memberships[userID] = list
}

type fixture struct {
	store    *memStore
	roles    *RoleService
	resolver *Resolver
	engine   *Engine
	scopes   *ScopeResolver
	guard    *Guard
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := discardLogger()
	store := newMemStore()
	roles := NewRoleService(store, DefaultCatalog(), store, logger)
	resolver := NewResolver(ResolverConfig{
		Credentials: store,
		Users:       store,
		Memberships: store,
		Roles:       roles,
		Logger:      logger,
	})
	engine := NewEngine(DefaultCatalog(), logger)
	scopes := NewScopeResolver(store, logger)
	return &fixture{
		store:    store,
		roles:    roles,
		resolver: resolver,
		engine:   engine,
		scopes:   scopes,
		guard:    NewGuard(engine, scopes, DefaultActions(), logger),
	}
}

// tenant registers a tenant user holding one role in one firm and returns the
// resolved principal.
func (f *fixture) tenant(t *testing.T, userID, firmID int64, perms ...string) Principal {
	t.Helper()
	roleID := f.store.addRole(firmID, "role", perms...)
	f.store.addUser(userID, "lawyer", false)
	f.store.addMembership(userID, firmID, roleID)
	token := "tenant-token"
	f.store.addToken(token, userID, firmID)
	p, err := f.resolver.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("resolve tenant: %v", err)
	}
	return p
}

func (f *fixture) superAdmin(t *testing.T, userID int64) Principal {
	t.Helper()
	f.store.addUser(userID, "root", true)
	f.store.addToken("admin-token", userID, 0)
	p, err := f.resolver.Resolve(context.Background(), "admin-token")
	if err != nil {
		t.Fatalf("resolve admin: %v", err)
	}
	return p
}
