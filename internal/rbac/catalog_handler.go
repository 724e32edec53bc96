package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/counsel-pm/counsel/internal/platform/httpx"
	"github.com/counsel-pm/counsel/internal/shared"
)

// CatalogHandler exposes the permission catalog and the action table to role
// authoring clients.
type CatalogHandler struct {
	catalog *Catalog
	actions *ActionRegistry
	rbac    Middleware
}

// NewCatalogHandler constructs a CatalogHandler.
func NewCatalogHandler(catalog *Catalog, actions *ActionRegistry, mw Middleware) *CatalogHandler {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &CatalogHandler{catalog: catalog, actions: actions, rbac: mw}
}

// MountRoutes registers GET /catalog.
func (h *CatalogHandler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAction(ActionCatalogView)).Get("/catalog", h.show)
}

type actionView struct {
	ID    string   `json:"id"`
	Scope string   `json:"scope"`
	AnyOf []string `json:"any_of"`
}

type catalogView struct {
	Version     int                 `json:"version"`
	Permissions []string            `json:"permissions"`
	Groups      map[string][]string `json:"groups"`
	Actions     []actionView        `json:"actions"`
}

func (h *CatalogHandler) show(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.view())
}

func (h *CatalogHandler) view() catalogView {
	all := h.catalog.All()
	out := catalogView{
		Version:     h.catalog.Version(),
		Permissions: make([]string, len(all)),
		Groups: map[string][]string{
			"core":     h.known(shared.CoreScopes()),
			"practice": h.known(shared.PracticeScopes()),
		},
		Actions: []actionView{},
	}
	for i, p := range all {
		out.Permissions[i] = string(p)
	}
	if h.actions != nil {
		for _, a := range h.actions.All() {
			anyOf := make([]string, len(a.AnyOf))
			for i, p := range a.AnyOf {
				anyOf[i] = string(p)
			}
			out.Actions = append(out.Actions, actionView{ID: a.ID, Scope: a.Scope.String(), AnyOf: anyOf})
		}
	}
	return out
}

func (h *CatalogHandler) known(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if h.catalog.IsValid(Permission(id)) {
			out = append(out, id)
		}
	}
	return out
}
