package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/counsel-pm/counsel/internal/rbac"
	"github.com/counsel-pm/counsel/internal/shared"
)

// Claims carries identity only. Permissions are never embedded in the token;
// they are re-derived from the stores on every request.
type Claims struct {
	jwt.RegisteredClaims
	FirmID int64 `json:"firm,omitempty"`
}

// RevocationList records logged-out token ids.
type RevocationList interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// TokenConfig configures token signing.
type TokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Tokens issues and verifies HS256 bearer tokens. It implements
// rbac.CredentialVerifier.
type Tokens struct {
	secret  []byte
	issuer  string
	ttl     time.Duration
	revoked RevocationList
	now     func() time.Time
}

// NewTokens constructs a token issuer. revoked may be nil, in which case
// logout cannot invalidate outstanding tokens.
func NewTokens(cfg TokenConfig, revoked RevocationList) (*Tokens, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: token secret must be provided")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "counsel"
	}
	return &Tokens{
		secret:  []byte(cfg.Secret),
		issuer:  issuer,
		ttl:     ttl,
		revoked: revoked,
		now:     time.Now,
	}, nil
}

// Issue signs a token for userID carrying the selected firm (0 for none).
func (t *Tokens) Issue(userID, firmID int64) (IssuedToken, error) {
	now := t.now().UTC()
	expires := now.Add(t.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    t.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		FirmID: firmID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return IssuedToken{Token: signed, ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// VerifyCredential checks signature, issuer, expiry and revocation.
func (t *Tokens) VerifyCredential(ctx context.Context, token string) (rbac.Credential, error) {
	claims, err := t.parse(token)
	if err != nil {
		return rbac.Credential{}, err
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 || claims.ID == "" {
		return rbac.Credential{}, shared.ErrInvalidCredentials
	}
	if t.revoked != nil {
		revoked, err := t.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return rbac.Credential{}, err
		}
		if revoked {
			return rbac.Credential{}, shared.ErrInvalidCredentials
		}
	}
	return rbac.Credential{
		UserID:    userID,
		TokenID:   claims.ID,
		FirmID:    claims.FirmID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke invalidates token until its natural expiry.
func (t *Tokens) Revoke(ctx context.Context, token string) error {
	claims, err := t.parse(token)
	if err != nil {
		return err
	}
	if t.revoked == nil {
		return nil
	}
	return t.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time.Sub(t.now()))
}

func (t *Tokens) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return nil, shared.ErrInvalidCredentials
	}
	return claims, nil
}

var _ rbac.CredentialVerifier = (*Tokens)(nil)
