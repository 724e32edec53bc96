package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/counsel-pm/counsel/internal/shared"
)

// ResolverConfig groups the collaborators of a Resolver.
type ResolverConfig struct {
	Credentials CredentialVerifier
	Users       UserStore
	Memberships MembershipStore
	Roles       *RoleService
	Catalog     *Catalog
	Logger      *slog.Logger
}

// Resolver turns a credential into a Principal snapshot. It keeps no state
// between calls; every snapshot is derived from the token and the stores.
type Resolver struct {
	credentials CredentialVerifier
	users       UserStore
	memberships MembershipStore
	roles       *RoleService
	catalog     *Catalog
	logger      *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		credentials: cfg.Credentials,
		users:       cfg.Users,
		memberships: cfg.Memberships,
		roles:       cfg.Roles,
		catalog:     catalog,
		logger:      logger,
	}
}

// Resolve verifies token and builds the principal it identifies.
func (r *Resolver) Resolve(ctx context.Context, token string) (Principal, error) {
	cred, err := r.credentials.VerifyCredential(ctx, token)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			return Principal{}, err
		}
		return Principal{}, fmt.Errorf("rbac: verify credential: %w", err)
	}

	var (
		user        User
		memberships []Membership
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := r.users.GetUser(gctx, cred.UserID)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	g.Go(func() error {
		m, err := r.memberships.LoadMemberships(gctx, cred.UserID)
		if err != nil {
			return err
		}
		memberships = m
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Principal{}, shared.ErrInvalidCredentials
		}
		return Principal{}, fmt.Errorf("rbac: load principal: %w", err)
	}
	if !user.IsActive {
		return Principal{}, shared.ErrInvalidCredentials
	}

	p := Principal{
		userID:  user.ID,
		name:    user.Name,
		email:   user.Email,
		firms:   firmRefs(memberships),
		tokenID: cred.TokenID,
	}
	if user.IsSuperAdmin {
		p.class = RoleClassSuperAdmin
		return p, nil
	}
	p.class = RoleClassTenant

	active, ok := selectActive(memberships, cred.FirmID)
	if !ok {
		return p, nil
	}
	return r.bind(ctx, p, active)
}

// SwitchActiveFirm returns a new snapshot with permissions resolved against
// firmID. The input principal is left untouched.
func (r *Resolver) SwitchActiveFirm(ctx context.Context, p Principal, firmID int64) (Principal, error) {
	if p.isZero() {
		return Principal{}, shared.ErrInvalidCredentials
	}
	if p.IsSuperAdmin() {
		return p, nil
	}
	if !p.IsMemberOf(firmID) {
		return Principal{}, shared.ErrNotAMember
	}
	m, err := r.memberships.GetMembership(ctx, p.UserID(), firmID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Principal{}, shared.ErrNotAMember
		}
		return Principal{}, fmt.Errorf("rbac: load membership: %w", err)
	}
	next := Principal{
		userID:  p.userID,
		name:    p.name,
		email:   p.email,
		class:   p.class,
		firms:   p.Firms(),
		tokenID: p.tokenID,
	}
	return r.bind(ctx, next, m)
}

// bind resolves the role of membership m into p. A missing role leaves the
// permission set empty and flags the snapshot.
func (r *Resolver) bind(ctx context.Context, p Principal, m Membership) (Principal, error) {
	p.activeFirmID = m.FirmID
	p.roleID = m.RoleID
	if m.RoleID == 0 {
		p.roleMissing = true
		return p, nil
	}
	role, err := r.roles.ResolveRole(ctx, m.RoleID, m.FirmID)
	if err != nil {
		if errors.Is(err, shared.ErrRoleNotFound) {
			r.logger.Warn("rbac membership role missing",
				slog.Int64("user_id", p.userID),
				slog.Int64("firm_id", m.FirmID),
				slog.Int64("role_id", m.RoleID))
			p.roleMissing = true
			return p, nil
		}
		return Principal{}, err
	}
	p.permissions = NewPermissionSet(r.catalog.Known(role.Permissions.Slice())...)
	return p, nil
}

// selectActive picks the explicit prior selection when it is still a
// membership, else the sole membership.
func selectActive(memberships []Membership, selected int64) (Membership, bool) {
	if selected > 0 {
		for _, m := range memberships {
			if m.FirmID == selected {
				return m, true
			}
		}
	}
	if len(memberships) == 1 {
		return memberships[0], true
	}
	return Membership{}, false
}

func firmRefs(memberships []Membership) []FirmRef {
	out := make([]FirmRef, 0, len(memberships))
	for _, m := range memberships {
		out = append(out, FirmRef{ID: m.FirmID, Name: m.FirmName})
	}
	return out
}
