package rbac

import (
	"sort"
	"strings"

	"github.com/counsel-pm/counsel/internal/shared"
)

// CatalogVersion identifies the permission catalog shipped with this build.
// Bump it whenever an identifier is added; identifiers are never renamed.
const CatalogVersion = 3

// Catalog is the closed registry of recognised permission identifiers. It is
// read-only after construction and safe for concurrent use.
type Catalog struct {
	version int
	entries map[Permission]struct{}
}

// NewCatalog builds a catalog from the provided identifiers. Blank entries are
// ignored; identifiers are matched exactly.
func NewCatalog(version int, ids ...string) *Catalog {
	entries := make(map[Permission]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		entries[Permission(id)] = struct{}{}
	}
	return &Catalog{version: version, entries: entries}
}

var defaultCatalog = NewCatalog(CatalogVersion, append(shared.CoreScopes(), shared.PracticeScopes()...)...)

// DefaultCatalog returns the process-wide catalog.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

// IsValid reports whether id is a catalog member.
func (c *Catalog) IsValid(id Permission) bool {
	if c == nil {
		return false
	}
	_, ok := c.entries[id]
	return ok
}

// Version returns the catalog version.
func (c *Catalog) Version() int {
	if c == nil {
		return 0
	}
	return c.version
}

// All returns every identifier sorted by name.
func (c *Catalog) All() []Permission {
	if c == nil {
		return nil
	}
	out := make([]Permission, 0, len(c.entries))
	for id := range c.entries {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate returns the first identifier that is not in the catalog, wrapped in
// shared.ErrInvalidPermission.
func (c *Catalog) Validate(ids []Permission) error {
	for _, id := range ids {
		if !c.IsValid(id) {
			return invalidPermission(id)
		}
	}
	return nil
}

// Known filters ids down to catalog members, preserving order.
func (c *Catalog) Known(ids []Permission) []Permission {
	out := make([]Permission, 0, len(ids))
	for _, id := range ids {
		if c.IsValid(id) {
			out = append(out, id)
		}
	}
	return out
}
