package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/counsel-pm/counsel/internal/shared"
)

// ScopeResolver binds a request to a target firm. It always re-reads the live
// membership row so a revocation after the principal was resolved takes effect
// immediately.
type ScopeResolver struct {
	memberships MembershipStore
	logger      *slog.Logger
}

// NewScopeResolver constructs a ScopeResolver.
func NewScopeResolver(memberships MembershipStore, logger *slog.Logger) *ScopeResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScopeResolver{memberships: memberships, logger: logger}
}

// ResolveScope returns an allowing decision when targetFirmID is in scope for
// p. Super Admin principals are in scope for every firm. Store failures are
// returned as errors, never as denials.
func (s *ScopeResolver) ResolveScope(ctx context.Context, p Principal, targetFirmID int64) (Decision, error) {
	if p.isZero() {
		return Deny(ReasonNotAMember), nil
	}
	if p.IsSuperAdmin() {
		return Allow(), nil
	}
	if !p.HasActiveFirm() {
		return Deny(ReasonNoActiveFirm), nil
	}
	if targetFirmID <= 0 || targetFirmID != p.ActiveFirmID() {
		return Deny(ReasonNotAMember), nil
	}
	if _, err := s.memberships.GetMembership(ctx, p.UserID(), targetFirmID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Info("rbac scope membership revoked",
				slog.Int64("user_id", p.UserID()),
				slog.Int64("firm_id", targetFirmID))
			return Deny(ReasonNotAMember), nil
		}
		return Decision{}, fmt.Errorf("rbac: load membership: %w", err)
	}
	return Allow(), nil
}
