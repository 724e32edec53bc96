package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/counsel-pm/counsel/internal/app"
	"github.com/counsel-pm/counsel/internal/audit"
	"github.com/counsel-pm/counsel/internal/auth"
	"github.com/counsel-pm/counsel/internal/cases"
	"github.com/counsel-pm/counsel/internal/observability"
	"github.com/counsel-pm/counsel/internal/rbac"
	"github.com/counsel-pm/counsel/internal/rbac/rbactest"
	"github.com/counsel-pm/counsel/internal/shared"
	_ "github.com/counsel-pm/counsel/testing"
)

const password = "correct-horse"

type accounts struct {
	byEmail map[string]*auth.User
}

func (a accounts) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	u, ok := a.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

type caseRepo struct {
	mu     sync.Mutex
	items  []cases.Case
	nextID int64
}

func (r *caseRepo) List(ctx context.Context, firmID int64, filters shared.ListFilters) ([]cases.Case, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []cases.Case
	for _, c := range r.items {
		if c.FirmID == firmID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (r *caseRepo) Get(ctx context.Context, firmID, id int64) (cases.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.items {
		if c.ID == id && c.FirmID == firmID {
			return c, nil
		}
	}
	return cases.Case{}, shared.ErrNotFound
}

func (r *caseRepo) Create(ctx context.Context, c cases.Case) (cases.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.items = append(r.items, c)
	return c, nil
}

func (r *caseRepo) UpdateStatus(ctx context.Context, firmID, id int64, status cases.Status) (cases.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.items {
		if c.ID == id && c.FirmID == firmID {
			r.items[i].Status = status
			return r.items[i], nil
		}
	}
	return cases.Case{}, shared.ErrNotFound
}

// auditTrail reads back what the services recorded into the rbactest store.
type auditTrail struct {
	store *rbactest.Store
}

func (a auditTrail) TimelineWindow(ctx context.Context, params audit.WindowParams) ([]audit.Entry, error) {
	rows, _ := a.TimelineAll(ctx, params.TimelineFilters)
	if params.Offset >= len(rows) {
		return nil, nil
	}
	rows = rows[params.Offset:]
	if len(rows) > params.Limit {
		rows = rows[:params.Limit]
	}
	return rows, nil
}

func (a auditTrail) TimelineAll(ctx context.Context, f audit.TimelineFilters) ([]audit.Entry, error) {
	var out []audit.Entry
	for i, log := range a.store.Audits() {
		if log.FirmID != f.FirmID {
			continue
		}
		at := log.At
		if at.IsZero() {
			at = time.Now()
		}
		out = append(out, audit.Entry{
			ID:       int64(i + 1),
			At:       at,
			ActorID:  log.ActorID,
			Action:   log.Action,
			Entity:   log.Entity,
			EntityID: log.EntityID,
			Meta:     log.Meta,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type env struct {
	server *httptest.Server
	store  *rbactest.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tokens, err := auth.NewTokens(auth.TokenConfig{Secret: "e2e-secret", TTL: time.Hour}, auth.NewRevocations(client))
	require.NoError(t, err)

	store := rbactest.NewStore()
	roleService := rbac.NewRoleService(store, nil, store, logger)
	resolver := rbac.NewResolver(rbac.ResolverConfig{
		Credentials: tokens,
		Users:       store,
		Memberships: store,
		Roles:       roleService,
		Logger:      logger,
	})
	guard := rbac.NewGuard(rbac.NewEngine(nil, logger), rbac.NewScopeResolver(store, logger), rbac.DefaultActions(), logger)
	metrics := observability.NewMetrics()
	mw := rbac.Middleware{Resolver: resolver, Guard: guard, Logger: logger, Observer: metrics}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	store.AddUser(1, "dana", false)
	partner := store.AddRole(5, "Partner", shared.PermReadCase, shared.PermCreateCase, shared.PermUpdateCaseStatus, shared.PermReadRole)
	clerk := store.AddRole(9, "Clerk", shared.PermViewCaseStatus)
	store.AddMembership(1, 5, partner)
	store.AddMembership(1, 9, clerk)
	repo := accounts{byEmail: map[string]*auth.User{
		"dana@firm.test": {ID: 1, Email: "dana@firm.test", Name: "dana", PasswordHash: string(hash), IsActive: true},
	}}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         &app.Config{AppEnv: "test", RateLimit: 1000},
		Metrics:        metrics,
		RBACMiddleware: mw,
		CatalogHandler: rbac.NewCatalogHandler(nil, guard.Actions(), mw),
		AuthHandler:    auth.NewHandler(logger, auth.NewService(repo, tokens, resolver), guard, mw, 100),
		CasesHandler:   cases.NewHandler(logger, cases.NewService(&caseRepo{}, store, logger), mw),
		AuditHandler:   audit.NewHandler(logger, audit.NewService(auditTrail{store: store}), mw),
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &env{server: server, store: store}
}

func (e *env) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

type session struct {
	Token string `json:"token"`
	User  struct {
		ActiveFirmID int64    `json:"active_firm_id"`
		Permissions  []string `json:"permissions"`
		Actions      []string `json:"visible_actions"`
	} `json:"user"`
}

func TestPracticeFlow(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "dana@firm.test", "password": "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, raw := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "dana@firm.test", "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var login session
	require.NoError(t, json.Unmarshal(raw, &login))
	require.NotEmpty(t, login.Token)

	// two memberships and no selection yet
	resp, _ = e.do(t, http.MethodGet, "/firms/5/cases", login.Token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, raw = e.do(t, http.MethodPost, "/me/firm", login.Token, map[string]int64{"firm_id": 5})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var atFive session
	require.NoError(t, json.Unmarshal(raw, &atFive))
	assert.Equal(t, int64(5), atFive.User.ActiveFirmID)
	assert.Contains(t, atFive.User.Permissions, shared.PermCreateCase)
	assert.Contains(t, atFive.User.Actions, rbac.ActionCasesCreate)

	resp, raw = e.do(t, http.MethodPost, "/firms/5/cases", atFive.Token, map[string]string{"reference": "hx-1", "title": "Hale v Moss"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var created cases.Case
	require.NoError(t, json.Unmarshal(raw, &created))

	resp, raw = e.do(t, http.MethodPatch, "/firms/5/cases/"+strconv.FormatInt(created.ID, 10)+"/status", atFive.Token, map[string]string{"status": "in_progress"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = e.do(t, http.MethodGet, "/firms/5/audit", atFive.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var trail audit.Result
	require.NoError(t, json.Unmarshal(raw, &trail))
	require.Len(t, trail.Entries, 2)
	assert.Equal(t, "case.update_status", trail.Entries[0].Action)
	assert.Equal(t, "case.create", trail.Entries[1].Action)

	// the clerk role at firm 9 only sees status
	resp, raw = e.do(t, http.MethodPost, "/me/firm", atFive.Token, map[string]int64{"firm_id": 9})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var atNine session
	require.NoError(t, json.Unmarshal(raw, &atNine))
	assert.Equal(t, []string{shared.PermViewCaseStatus}, atNine.User.Permissions)

	resp, _ = e.do(t, http.MethodGet, "/firms/5/cases", atNine.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = e.do(t, http.MethodPost, "/firms/9/cases", atNine.Token, map[string]string{"reference": "x", "title": "y"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = e.do(t, http.MethodGet, "/firms/9/cases", atNine.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/me/firm", atNine.Token, map[string]int64{"firm_id": 77})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/auth/logout", atFive.Token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = e.do(t, http.MethodGet, "/me", atFive.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = e.do(t, http.MethodGet, "/me", atNine.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMembershipRevocationTakesEffectImmediately(t *testing.T) {
	e := newEnv(t)

	_, raw := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "dana@firm.test", "password": password})
	var login session
	require.NoError(t, json.Unmarshal(raw, &login))
	_, raw = e.do(t, http.MethodPost, "/me/firm", login.Token, map[string]int64{"firm_id": 5})
	var atFive session
	require.NoError(t, json.Unmarshal(raw, &atFive))

	resp, _ := e.do(t, http.MethodGet, "/firms/5/cases", atFive.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.True(t, e.store.RemoveMembership(1, 5))
	resp, _ = e.do(t, http.MethodGet, "/firms/5/cases", atFive.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
