package rbac

// Principal is the resolved actor for one request. It is an immutable snapshot:
// fields are unexported and only the Resolver builds one. Switching firms
// produces a new Principal.
type Principal struct {
	userID       int64
	name         string
	email        string
	class        RoleClass
	activeFirmID int64
	firms        []FirmRef
	roleID       int64
	roleMissing  bool
	permissions  PermissionSet
	tokenID      string
}

// UserID returns the user identifier.
func (p Principal) UserID() int64 { return p.userID }

// Name returns the display name.
func (p Principal) Name() string { return p.name }

// Email returns the login email.
func (p Principal) Email() string { return p.email }

// Class returns the role class.
func (p Principal) Class() RoleClass { return p.class }

// IsSuperAdmin reports whether the principal is a platform administrator.
func (p Principal) IsSuperAdmin() bool { return p.class == RoleClassSuperAdmin }

// ActiveFirmID returns the firm the permissions were resolved against, or zero.
func (p Principal) ActiveFirmID() int64 { return p.activeFirmID }

// HasActiveFirm reports whether a firm is selected.
func (p Principal) HasActiveFirm() bool { return p.activeFirmID > 0 }

// RoleID returns the role bound to the active membership, or zero.
func (p Principal) RoleID() int64 { return p.roleID }

// RoleMissing reports whether the active membership references no loadable role.
func (p Principal) RoleMissing() bool { return p.roleMissing }

// TokenID returns the id of the credential the snapshot was resolved from.
func (p Principal) TokenID() string { return p.tokenID }

// Firms returns a copy of the ordered membership list.
func (p Principal) Firms() []FirmRef {
	out := make([]FirmRef, len(p.firms))
	copy(out, p.firms)
	return out
}

// IsMemberOf reports whether the snapshot lists firmID among its memberships.
func (p Principal) IsMemberOf(firmID int64) bool {
	for _, f := range p.firms {
		if f.ID == firmID {
			return true
		}
	}
	return false
}

// Permissions returns the resolved permission set. Super Admin principals return
// an empty set; their access comes from the role class, not from enumeration.
func (p Principal) Permissions() PermissionSet { return p.permissions }

// Has reports whether the resolved set contains perm.
func (p Principal) Has(perm Permission) bool { return p.permissions.Has(perm) }

func (p Principal) isZero() bool { return p.userID == 0 }
