package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/counsel-pm/counsel/internal/rbac"
	"github.com/counsel-pm/counsel/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	tokens   *Tokens
	resolver *rbac.Resolver
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *Tokens, resolver *rbac.Resolver) *Service {
	return &Service{repo: repo, tokens: tokens, resolver: resolver}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a token with no firm selected. The resolver
// picks the firm itself when the user has exactly one membership.
func (s *Service) Login(ctx context.Context, email, password string) (*User, IssuedToken, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, IssuedToken{}, err
	}
	token, err := s.tokens.Issue(user.ID, 0)
	if err != nil {
		return nil, IssuedToken{}, err
	}
	return user, token, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

// SelectFirm switches the principal's active firm and issues a token carrying
// the selection. The returned principal is the new snapshot; p is untouched.
func (s *Service) SelectFirm(ctx context.Context, p rbac.Principal, firmID int64) (rbac.Principal, IssuedToken, error) {
	switched, err := s.resolver.SwitchActiveFirm(ctx, p, firmID)
	if err != nil {
		return rbac.Principal{}, IssuedToken{}, err
	}
	token, err := s.tokens.Issue(switched.UserID(), switched.ActiveFirmID())
	if err != nil {
		return rbac.Principal{}, IssuedToken{}, err
	}
	return switched, token, nil
}
