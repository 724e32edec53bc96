package cases_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/counsel-pm/counsel/internal/cases"
	"github.com/counsel-pm/counsel/internal/rbac/rbactest"
	"github.com/counsel-pm/counsel/internal/shared"
	_ "github.com/counsel-pm/counsel/testing"
)

type memRepo struct {
	mu     sync.Mutex
	items  map[int64]cases.Case
	nextID int64
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[int64]cases.Case), nextID: 1}
}

func (r *memRepo) List(ctx context.Context, firmID int64, filters shared.ListFilters) ([]cases.Case, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []cases.Case
	for _, c := range r.items {
		if c.FirmID == firmID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memRepo) Get(ctx context.Context, firmID, id int64) (cases.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok || c.FirmID != firmID {
		return cases.Case{}, shared.ErrNotFound
	}
	return c, nil
}

func (r *memRepo) Create(ctx context.Context, c cases.Case) (cases.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.FirmID == c.FirmID && existing.Reference == c.Reference {
			return cases.Case{}, fmt.Errorf("%w: duplicate reference", shared.ErrConflict)
		}
	}
	c.ID = r.nextID
	r.nextID++
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.items[c.ID] = c
	return c, nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, firmID, id int64, status cases.Status) (cases.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok || c.FirmID != firmID {
		return cases.Case{}, shared.ErrNotFound
	}
	c.Status = status
	r.items[id] = c
	return c, nil
}

type fixture struct {
	harness *rbactest.Harness
	repo    *memRepo
	router  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := rbactest.NewHarness()
	repo := newMemRepo()
	handler := cases.NewHandler(nil, cases.NewService(repo, h.Store, nil), h.Middleware)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(h.Middleware.Authenticate)
		r.Route("/firms/{firmID}/cases", handler.MountRoutes)
	})
	return &fixture{harness: h, repo: repo, router: r}
}

func (f *fixture) call(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeCases(t *testing.T, rr *httptest.ResponseRecorder) []cases.Case {
	t.Helper()
	var body struct {
		Cases []cases.Case `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Cases
}

func TestListAcceptsEitherCasePermission(t *testing.T) {
	f := newFixture(t)
	f.harness.Tenant("lawyer", 1, 5, shared.PermReadCase)
	f.harness.Tenant("clerk", 2, 5, shared.PermViewCaseStatus)
	f.harness.Tenant("intern", 3, 5, shared.PermReadClient)
	_, err := f.repo.Create(t.Context(), cases.Case{FirmID: 5, Reference: "C-1", Title: "Estate of Doe", Status: cases.StatusOpen})
	require.NoError(t, err)
	_, err = f.repo.Create(t.Context(), cases.Case{FirmID: 6, Reference: "C-9", Title: "Elsewhere", Status: cases.StatusOpen})
	require.NoError(t, err)

	rr := f.call(t, http.MethodGet, "/firms/5/cases/", "lawyer", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	full := decodeCases(t, rr)
	require.Len(t, full, 1)
	assert.Equal(t, "Estate of Doe", full[0].Title)

	rr = f.call(t, http.MethodGet, "/firms/5/cases/", "clerk", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	summary := decodeCases(t, rr)
	require.Len(t, summary, 1)
	assert.Empty(t, summary[0].Title)
	assert.Equal(t, cases.StatusOpen, summary[0].Status)

	assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodGet, "/firms/5/cases/", "intern", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodGet, "/firms/6/cases/", "lawyer", nil).Code)
}

func TestCreateCase(t *testing.T) {
	f := newFixture(t)
	f.harness.Tenant("partner", 1, 5, shared.PermCreateCase)
	f.harness.Tenant("lawyer", 2, 5, shared.PermReadCase)

	rr := f.call(t, http.MethodPost, "/firms/5/cases/", "partner", map[string]string{"reference": "c-42", "title": "Smith v Jones"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created cases.Case
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "C-42", created.Reference)
	assert.Equal(t, int64(5), created.FirmID)
	assert.Equal(t, int64(1), created.CreatedBy)
	assert.Equal(t, cases.StatusOpen, created.Status)

	rr = f.call(t, http.MethodPost, "/firms/5/cases/", "partner", map[string]string{"reference": "C-42", "title": "Again"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.call(t, http.MethodPost, "/firms/5/cases/", "partner", map[string]string{"reference": "C-43"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.call(t, http.MethodPost, "/firms/5/cases/", "lawyer", map[string]string{"reference": "C-44", "title": "Denied"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.NotContains(t, rr.Body.String(), shared.PermCreateCase)
}

func TestUpdateCaseStatus(t *testing.T) {
	f := newFixture(t)
	f.harness.Tenant("partner", 1, 5, shared.PermUpdateCaseStatus)
	c, err := f.repo.Create(t.Context(), cases.Case{FirmID: 5, Reference: "C-1", Title: "Doe", Status: cases.StatusOpen})
	require.NoError(t, err)
	foreign, err := f.repo.Create(t.Context(), cases.Case{FirmID: 6, Reference: "C-2", Title: "Roe", Status: cases.StatusOpen})
	require.NoError(t, err)
	path := fmt.Sprintf("/firms/5/cases/%d/status", c.ID)

	rr := f.call(t, http.MethodPatch, path, "partner", map[string]string{"status": "closed"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got, err := f.repo.Get(t.Context(), 5, c.ID)
	require.NoError(t, err)
	assert.Equal(t, cases.StatusClosed, got.Status)

	assert.Equal(t, http.StatusConflict, f.call(t, http.MethodPatch, path, "partner", map[string]string{"status": "open"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPatch, path, "partner", map[string]string{"status": "archived"}).Code)

	// a case id from another firm is invisible through this firm's path
	rr = f.call(t, http.MethodPatch, fmt.Sprintf("/firms/5/cases/%d/status", foreign.ID), "partner", map[string]string{"status": "closed"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	audits := f.harness.Store.Audits()
	require.Len(t, audits, 1)
	assert.Equal(t, "case.update_status", audits[0].Action)
	assert.Equal(t, "closed", audits[0].Meta["to"])
}

func TestSuperAdminReadsAnyFirm(t *testing.T) {
	f := newFixture(t)
	f.harness.SuperAdmin("root", 99)
	_, err := f.repo.Create(t.Context(), cases.Case{FirmID: 7, Reference: "C-1", Title: "Doe", Status: cases.StatusOpen})
	require.NoError(t, err)

	rr := f.call(t, http.MethodGet, "/firms/7/cases/", "root", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeCases(t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, "Doe", list[0].Title)
}

type memKeys struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (k *memKeys) CheckAndInsert(ctx context.Context, scope, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.seen[scope+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	k.seen[scope+"/"+key] = true
	return nil
}

func (k *memKeys) Release(ctx context.Context, scope, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.seen, scope+"/"+key)
	return nil
}

func TestCreateCaseIdempotencyKey(t *testing.T) {
	h := rbactest.NewHarness()
	repo := newMemRepo()
	keys := &memKeys{seen: make(map[string]bool)}
	handler := cases.NewHandler(nil, cases.NewService(repo, h.Store, nil), h.Middleware).WithIdempotency(keys)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(h.Middleware.Authenticate)
		r.Route("/firms/{firmID}/cases", handler.MountRoutes)
	})
	h.Tenant("partner", 1, 5, shared.PermCreateCase)

	post := func(key string, body map[string]string) int {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/firms/5/cases/", bytes.NewReader(raw))
		req.Header.Set("Authorization", "Bearer partner")
		req.Header.Set(shared.IdempotencyHeader, key)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusCreated, post("k-1", map[string]string{"reference": "C-1", "title": "Doe"}))
	assert.Equal(t, http.StatusConflict, post("k-1", map[string]string{"reference": "C-2", "title": "Roe"}))

	// a failed create frees its key for the retry
	assert.Equal(t, http.StatusConflict, post("k-2", map[string]string{"reference": "C-1", "title": "Dup"}))
	assert.Equal(t, http.StatusCreated, post("k-2", map[string]string{"reference": "C-3", "title": "Poe"}))

	list, _, err := repo.List(t.Context(), 5, shared.ListFilters{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
