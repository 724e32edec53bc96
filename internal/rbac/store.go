package rbac

import "context"

// CredentialVerifier verifies bearer tokens. Implementations return
// shared.ErrInvalidCredentials for any token that cannot be trusted.
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, token string) (Credential, error)
}

// UserStore loads directory records. Missing users yield shared.ErrNotFound.
type UserStore interface {
	GetUser(ctx context.Context, userID int64) (User, error)
}

// MembershipStore reads firm memberships. GetMembership yields
// shared.ErrNotFound when the membership row does not exist.
type MembershipStore interface {
	LoadMemberships(ctx context.Context, userID int64) ([]Membership, error)
	GetMembership(ctx context.Context, userID, firmID int64) (Membership, error)
}

// RoleStore persists roles and their permission sets. Every mutating method
// must apply its changes atomically. LoadRole yields shared.ErrNotFound for
// unknown ids; CreateRole yields shared.ErrDuplicateRole on a name clash.
type RoleStore interface {
	LoadRole(ctx context.Context, roleID int64) (Role, error)
	ListRoles(ctx context.Context, firmID int64) ([]Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, perms []Permission) error
	DeleteRole(ctx context.Context, roleID, replacementRoleID int64) (int64, error)
}
