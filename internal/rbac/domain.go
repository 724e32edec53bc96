package rbac

import (
	"fmt"
	"sort"
	"time"

	"github.com/counsel-pm/counsel/internal/shared"
)

// Permission is an atomic capability identifier drawn from the Catalog.
type Permission string

// PermissionSet is an immutable set of permissions.
type PermissionSet struct {
	items map[Permission]struct{}
}

// NewPermissionSet builds a set from the provided permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	items := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		if p == "" {
			continue
		}
		items[p] = struct{}{}
	}
	return PermissionSet{items: items}
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s.items[p]
	return ok
}

// Len returns the number of permissions held.
func (s PermissionSet) Len() int {
	return len(s.items)
}

// Slice returns the permissions sorted by name.
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s.items))
	for p := range s.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the permissions as sorted plain strings.
func (s PermissionSet) Strings() []string {
	perms := s.Slice()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// Role is a named bundle of permissions scoped to a firm. FirmID is zero only
// for the platform Super Admin role.
type Role struct {
	ID          int64
	FirmID      int64
	Name        string
	Description string
	Permissions PermissionSet
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsPlatform reports whether the role is the platform-level role.
func (r Role) IsPlatform() bool {
	return r.FirmID == 0
}

// Membership binds a user, a firm and the role held there. RoleID is zero when
// the role reference was nulled out by a role deletion.
type Membership struct {
	UserID   int64
	FirmID   int64
	FirmName string
	RoleID   int64
}

// User is the directory record backing a principal.
type User struct {
	ID           int64
	Name         string
	Email        string
	IsSuperAdmin bool
	IsActive     bool
}

// Credential is the verified content of a bearer token.
type Credential struct {
	UserID    int64
	TokenID   string
	FirmID    int64
	ExpiresAt time.Time
}

// RoleClass distinguishes platform administrators from tenant users.
type RoleClass string

const (
	// RoleClassSuperAdmin bypasses firm-scoped permission checks.
	RoleClassSuperAdmin RoleClass = "super_admin"
	// RoleClassTenant is evaluated against the active firm membership.
	RoleClassTenant RoleClass = "tenant"
)

// FirmRef names a firm the principal belongs to.
type FirmRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func invalidPermission(p Permission) error {
	return fmt.Errorf("%w: %q", shared.ErrInvalidPermission, string(p))
}
