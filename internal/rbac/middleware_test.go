package rbac

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/counsel-pm/counsel/internal/shared"
)

type recordedDecision struct {
	action, outcome, reason string
}

type decisionRecorder struct {
	mu   sync.Mutex
	seen []recordedDecision
}

func (r *decisionRecorder) ObserveDecision(action, outcome, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, recordedDecision{action, outcome, reason})
}

func newGuardedRouter(f *fixture, observer DecisionObserver) http.Handler {
	mw := Middleware{Resolver: f.resolver, Guard: f.guard, Logger: discardLogger(), Observer: observer}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		w.Header().Set("X-User", p.Email())
		w.WriteHeader(http.StatusNoContent)
	})
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate)
		r.With(mw.RequireAction(ActionFirmsCreate)).Post("/firms", ok)
		r.Route("/firms/{firmID}/cases", func(r chi.Router) {
			r.With(mw.RequireAction(ActionCasesList)).Get("/", ok)
			r.With(mw.RequireAction(ActionCasesCreate)).Post("/", ok)
		})
	})
	return r
}

func serve(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestMiddlewareStatusMapping(t *testing.T) {
	f := newFixture(t)
	f.tenant(t, 1, 5, shared.PermReadCase)
	roleA := f.store.addRole(3, "associate", shared.PermReadCase)
	roleB := f.store.addRole(9, "associate", shared.PermReadCase)
	f.store.addUser(2, "floater", false)
	f.store.addMembership(2, 3, roleA)
	f.store.addMembership(2, 9, roleB)
	f.store.addToken("floater-token", 2, 0)
	recorder := &decisionRecorder{}
	h := newGuardedRouter(f, recorder)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no credential", http.MethodGet, "/firms/5/cases/", "", http.StatusUnauthorized},
		{"unknown token", http.MethodGet, "/firms/5/cases/", "forged", http.StatusUnauthorized},
		{"allowed", http.MethodGet, "/firms/5/cases/", "tenant-token", http.StatusNoContent},
		{"missing permission", http.MethodPost, "/firms/5/cases/", "tenant-token", http.StatusForbidden},
		{"other firm", http.MethodGet, "/firms/7/cases/", "tenant-token", http.StatusForbidden},
		{"platform action", http.MethodPost, "/firms", "tenant-token", http.StatusForbidden},
		{"no active firm", http.MethodGet, "/firms/3/cases/", "floater-token", http.StatusConflict},
		{"bad firm id", http.MethodGet, "/firms/abc/cases/", "tenant-token", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(h, tc.method, tc.path, tc.token)
			assert.Equal(t, tc.want, rr.Code)
			assert.NotContains(t, rr.Body.String(), shared.PermCreateCase)
		})
	}

	require.NotEmpty(t, recorder.seen)
	assert.Contains(t, recorder.seen, recordedDecision{ActionCasesCreate, "deny", string(ReasonMissingPermission)})
	assert.Contains(t, recorder.seen, recordedDecision{ActionCasesList, "allow", ""})
}

func TestMiddlewareSuperAdmin(t *testing.T) {
	f := newFixture(t)
	f.superAdmin(t, 99)
	h := newGuardedRouter(f, nil)

	rr := serve(h, http.MethodPost, "/firms", "admin-token")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "root@firm.test", rr.Header().Get("X-User"))

	rr = serve(h, http.MethodPost, "/firms/7/cases/", "admin-token")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := BearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Basic abc")
	_, ok = BearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "bearer   abc ")
	token, ok := BearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)
}
