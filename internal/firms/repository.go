package firms

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/counsel-pm/counsel/internal/platform/db"
	"github.com/counsel-pm/counsel/internal/rbac"
	"github.com/counsel-pm/counsel/internal/roles"
	"github.com/counsel-pm/counsel/internal/shared"
)

// Repository defines persistence operations for firms.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Firm, int, error)
	Get(ctx context.Context, id int64) (Firm, error)
	// CreateWithAdminRole stores firm and its seed role atomically. The role's
	// FirmID is filled in from the new firm.
	CreateWithAdminRole(ctx context.Context, firm Firm, admin rbac.Role) (Firm, rbac.Role, error)
	Update(ctx context.Context, id int64, name string) (Firm, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const firmColumns = `id, code, name, created_at, updated_at`

func scanFirm(row pgx.Row) (Firm, error) {
	var f Firm
	err := row.Scan(&f.ID, &f.Code, &f.Name, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Firm{}, shared.ErrNotFound
	}
	return f, err
}

// List uses a dynamic query for the optional search filter.
func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Firm, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND (name ILIKE $1 OR code ILIKE $1)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM firms`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + firmColumns + ` FROM firms` + where + ` ORDER BY name ASC`
	if filters.Limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
		args = append(args, filters.Limit, filters.Offset())
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Firm
	for rows.Next() {
		f, err := scanFirm(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, f)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Firm, error) {
	return scanFirm(r.pool.QueryRow(ctx, `SELECT `+firmColumns+` FROM firms WHERE id = $1`, id))
}

func (r *repository) CreateWithAdminRole(ctx context.Context, firm Firm, admin rbac.Role) (Firm, rbac.Role, error) {
	var (
		created Firm
		role    rbac.Role
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		created, err = scanFirm(tx.QueryRow(ctx,
			`INSERT INTO firms (code, name) VALUES ($1, $2) RETURNING `+firmColumns, firm.Code, firm.Name))
		if err != nil {
			return err
		}
		admin.FirmID = created.ID
		role, err = roles.InsertRole(ctx, tx, admin)
		if err != nil {
			return fmt.Errorf("firms: seed admin role: %w", err)
		}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err) && created.ID == 0 {
			return Firm{}, rbac.Role{}, fmt.Errorf("%w: firm code %q already used", shared.ErrConflict, firm.Code)
		}
		return Firm{}, rbac.Role{}, err
	}
	return created, role, nil
}

func (r *repository) Update(ctx context.Context, id int64, name string) (Firm, error) {
	return scanFirm(r.pool.QueryRow(ctx,
		`UPDATE firms SET name = $2, updated_at = now() WHERE id = $1 RETURNING `+firmColumns, id, name))
}
