package cases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/counsel-pm/counsel/internal/platform/db"
	"github.com/counsel-pm/counsel/internal/shared"
)

// Repository persists the case register. Every method is bound to one firm.
type Repository interface {
	List(ctx context.Context, firmID int64, filters shared.ListFilters) ([]Case, int, error)
	Get(ctx context.Context, firmID, id int64) (Case, error)
	Create(ctx context.Context, c Case) (Case, error)
	UpdateStatus(ctx context.Context, firmID, id int64, status Status) (Case, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const caseColumns = `id, firm_id, reference, title, status, COALESCE(created_by, 0), created_at, updated_at`

func scanCase(row pgx.Row) (Case, error) {
	var c Case
	err := row.Scan(&c.ID, &c.FirmID, &c.Reference, &c.Title, &c.Status, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Case{}, shared.ErrNotFound
	}
	return c, err
}

func (r *repository) List(ctx context.Context, firmID int64, filters shared.ListFilters) ([]Case, int, error) {
	where := []string{"firm_id = $1"}
	args := []any{firmID}
	if s := strings.TrimSpace(filters.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(reference ILIKE $%d OR title ILIKE $%d)", len(args), len(args)))
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cases`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filters.Offset())
	query := fmt.Sprintf(`SELECT %s FROM cases%s ORDER BY updated_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		caseColumns, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, firmID, id int64) (Case, error) {
	return scanCase(r.pool.QueryRow(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE firm_id = $1 AND id = $2`, firmID, id))
}

func (r *repository) Create(ctx context.Context, c Case) (Case, error) {
	var createdBy *int64
	if c.CreatedBy > 0 {
		createdBy = &c.CreatedBy
	}
	out, err := scanCase(r.pool.QueryRow(ctx,
		`INSERT INTO cases (firm_id, reference, title, status, created_by)
		 VALUES ($1, $2, $3, $4, $5) RETURNING `+caseColumns,
		c.FirmID, c.Reference, c.Title, c.Status, createdBy))
	if err != nil && db.IsUniqueViolation(err) {
		return Case{}, fmt.Errorf("%w: case reference %q already used", shared.ErrConflict, c.Reference)
	}
	return out, err
}

func (r *repository) UpdateStatus(ctx context.Context, firmID, id int64, status Status) (Case, error) {
	return scanCase(r.pool.QueryRow(ctx,
		`UPDATE cases SET status = $3, updated_at = now() WHERE firm_id = $1 AND id = $2 RETURNING `+caseColumns,
		firmID, id, status))
}
