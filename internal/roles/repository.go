package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/counsel-pm/counsel/internal/platform/db"
	"github.com/counsel-pm/counsel/internal/rbac"
	"github.com/counsel-pm/counsel/internal/shared"
)

// Repository provides PostgreSQL backed persistence for roles and their
// permission sets. It implements rbac.RoleStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, COALESCE(firm_id, 0), name, description, created_at, updated_at`

func scanRole(row pgx.Row) (rbac.Role, error) {
	var role rbac.Role
	err := row.Scan(&role.ID, &role.FirmID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// LoadRole fetches one role with its permissions.
func (r *Repository) LoadRole(ctx context.Context, roleID int64) (rbac.Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, roleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Role{}, shared.ErrNotFound
		}
		return rbac.Role{}, err
	}
	perms, err := r.permissionsFor(ctx, []int64{roleID})
	if err != nil {
		return rbac.Role{}, err
	}
	role.Permissions = rbac.NewPermissionSet(perms[roleID]...)
	return role, nil
}

// ListRoles returns the roles defined by firmID. Zero lists platform roles.
func (r *Repository) ListRoles(ctx context.Context, firmID int64) ([]rbac.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE firm_id = $1 ORDER BY lower(name)`
	args := []any{firmID}
	if firmID == 0 {
		query = `SELECT ` + roleColumns + ` FROM roles WHERE firm_id IS NULL ORDER BY lower(name)`
		args = nil
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []rbac.Role
	var ids []int64
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
		ids = append(ids, role.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	perms, err := r.permissionsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Permissions = rbac.NewPermissionSet(perms[out[i].ID]...)
	}
	return out, nil
}

// CreateRole inserts a role and its permission set in one transaction.
func (r *Repository) CreateRole(ctx context.Context, role rbac.Role) (rbac.Role, error) {
	var created rbac.Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		created, err = InsertRole(ctx, tx, role)
		return err
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return rbac.Role{}, fmt.Errorf("%w: %q", shared.ErrDuplicateRole, role.Name)
		}
		return rbac.Role{}, err
	}
	return created, nil
}

// InsertRole writes role and its permission set using tx. FirmID zero stores
// the platform role.
func InsertRole(ctx context.Context, tx pgx.Tx, role rbac.Role) (rbac.Role, error) {
	var firmID *int64
	if role.FirmID > 0 {
		firmID = &role.FirmID
	}
	err := tx.QueryRow(ctx,
		`INSERT INTO roles (firm_id, name, description) VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`,
		firmID, role.Name, role.Description,
	).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return rbac.Role{}, err
	}
	if err := insertPermissions(ctx, tx, role.ID, role.Permissions.Slice()); err != nil {
		return rbac.Role{}, err
	}
	return role, nil
}

// ReplaceRolePermissions swaps the whole permission set of roleID.
func (r *Repository) ReplaceRolePermissions(ctx context.Context, roleID int64, perms []rbac.Permission) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE roles SET updated_at = now() WHERE id = $1`, roleID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		return insertPermissions(ctx, tx, roleID, perms)
	})
}

// DeleteRole moves the role's memberships to replacementRoleID (or clears the
// reference when it is zero) and deletes the role. It returns how many
// memberships were touched.
func (r *Repository) DeleteRole(ctx context.Context, roleID, replacementRoleID int64) (int64, error) {
	var replacement *int64
	if replacementRoleID > 0 {
		replacement = &replacementRoleID
	}
	var moved int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE memberships SET role_id = $2 WHERE role_id = $1`, roleID, replacement)
		if err != nil {
			return err
		}
		moved = tag.RowsAffected()
		tag, err = tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

// SyncCatalog mirrors catalog into the permissions table and drops rows the
// catalog no longer lists. It returns the number of mirrored identifiers.
func (r *Repository) SyncCatalog(ctx context.Context, catalog *rbac.Catalog) (int, error) {
	all := catalog.All()
	names := make([]string, len(all))
	for i, p := range all {
		names[i] = string(p)
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, name := range names {
			batch.Queue(`INSERT INTO permissions (name, catalog_version, synced_at) VALUES ($1, $2, now())
				ON CONFLICT (name) DO UPDATE SET catalog_version = EXCLUDED.catalog_version, synced_at = now()`,
				name, catalog.Version())
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("roles: upsert catalog: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM permissions WHERE NOT (name = ANY($1))`, names); err != nil {
			return fmt.Errorf("roles: prune catalog: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// UnknownPermissions counts stored permission ids missing from catalog.
func (r *Repository) UnknownPermissions(ctx context.Context, catalog *rbac.Catalog) (int, error) {
	known := catalog.All()
	names := make([]string, len(known))
	for i, p := range known {
		names[i] = string(p)
	}
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM role_permissions WHERE NOT (permission = ANY($1))`, names,
	).Scan(&count)
	return count, err
}

func (r *Repository) permissionsFor(ctx context.Context, roleIDs []int64) (map[int64][]rbac.Permission, error) {
	out := make(map[int64][]rbac.Permission, len(roleIDs))
	if len(roleIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT role_id, permission FROM role_permissions WHERE role_id = ANY($1) ORDER BY role_id, permission`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var roleID int64
		var perm string
		if err := rows.Scan(&roleID, &perm); err != nil {
			return nil, err
		}
		out[roleID] = append(out[roleID], rbac.Permission(perm))
	}
	return out, rows.Err()
}

func insertPermissions(ctx context.Context, tx pgx.Tx, roleID int64, perms []rbac.Permission) error {
	if len(perms) == 0 {
		return nil
	}
	rows := make([][]any, len(perms))
	for i, p := range perms {
		rows[i] = []any{roleID, string(p)}
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"role_permissions"}, []string{"role_id", "permission"}, pgx.CopyFromRows(rows))
	return err
}

var _ rbac.RoleStore = (*Repository)(nil)
