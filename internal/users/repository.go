package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/counsel-pm/counsel/internal/platform/db"
	"github.com/counsel-pm/counsel/internal/rbac"
	"github.com/counsel-pm/counsel/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the user directory and
// firm memberships. It implements rbac.UserStore, rbac.MembershipStore and
// MemberStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, name, email, is_super_admin, is_active`

func scanUser(row pgx.Row) (rbac.User, error) {
	var u rbac.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.IsSuperAdmin, &u.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return rbac.User{}, shared.ErrNotFound
	}
	return u, err
}

// GetUser loads a directory record.
func (r *Repository) GetUser(ctx context.Context, userID int64) (rbac.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

// FindUserByEmail loads a directory record by case-insensitive email.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (rbac.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, strings.ToLower(email)))
}

// CreateUser inserts an active tenant user without a password.
func (r *Repository) CreateUser(ctx context.Context, email, name string) (rbac.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`INSERT INTO users (email, name) VALUES ($1, $2) RETURNING `+userColumns, email, name))
	if err != nil && db.IsUniqueViolation(err) {
		return rbac.User{}, fmt.Errorf("%w: email already registered", shared.ErrConflict)
	}
	return u, err
}

const membershipSelect = `SELECT m.user_id, m.firm_id, f.name, COALESCE(m.role_id, 0)
FROM memberships m
JOIN firms f ON f.id = m.firm_id`

// LoadMemberships lists every firm userID belongs to.
func (r *Repository) LoadMemberships(ctx context.Context, userID int64) ([]rbac.Membership, error) {
	rows, err := r.pool.Query(ctx, membershipSelect+` WHERE m.user_id = $1 ORDER BY f.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []rbac.Membership
	for rows.Next() {
		var m rbac.Membership
		if err := rows.Scan(&m.UserID, &m.FirmID, &m.FirmName, &m.RoleID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMembership reads one membership row.
func (r *Repository) GetMembership(ctx context.Context, userID, firmID int64) (rbac.Membership, error) {
	var m rbac.Membership
	err := r.pool.QueryRow(ctx, membershipSelect+` WHERE m.user_id = $1 AND m.firm_id = $2`, userID, firmID).
		Scan(&m.UserID, &m.FirmID, &m.FirmName, &m.RoleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Membership{}, shared.ErrNotFound
		}
		return rbac.Membership{}, err
	}
	return m, nil
}

// ListMembers lists the members of firmID with their role names.
func (r *Repository) ListMembers(ctx context.Context, firmID int64) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT u.id, u.name, u.email, COALESCE(m.role_id, 0), COALESCE(ro.name, ''), m.created_at
FROM memberships m
JOIN users u ON u.id = m.user_id
LEFT JOIN roles ro ON ro.id = m.role_id
WHERE m.firm_id = $1
ORDER BY u.name, u.id`, firmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Name, &m.Email, &m.RoleID, &m.RoleName, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddMembership inserts a membership.
func (r *Repository) AddMembership(ctx context.Context, userID, firmID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO memberships (user_id, firm_id, role_id) VALUES ($1, $2, $3)`, userID, firmID, roleID)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: already a member", shared.ErrConflict)
	}
	return err
}

// SetMemberRole changes the role held by userID in firmID.
func (r *Repository) SetMemberRole(ctx context.Context, userID, firmID, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE memberships SET role_id = $3 WHERE user_id = $1 AND firm_id = $2`, userID, firmID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RemoveMembership deletes the membership of userID in firmID.
func (r *Repository) RemoveMembership(ctx context.Context, userID, firmID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM memberships WHERE user_id = $1 AND firm_id = $2`, userID, firmID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var (
	_ rbac.UserStore       = (*Repository)(nil)
	_ rbac.MembershipStore = (*Repository)(nil)
	_ MemberStore          = (*Repository)(nil)
)
