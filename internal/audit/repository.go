package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const entrySelect = `SELECT a.id, a.occurred_at, a.actor_id, COALESCE(u.name, ''), a.action, a.entity, a.entity_id, a.meta
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id`

func whereClause(f TimelineFilters) (string, []any) {
	conds := []string{"a.firm_id = $1"}
	args := []any{f.FirmID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("a.occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("a.occurred_at < $%d", f.To)
	}
	if f.ActorID > 0 {
		add("a.actor_id = $%d", f.ActorID)
	}
	if e := strings.TrimSpace(f.Entity); e != "" {
		add("a.entity = $%d", e)
	}
	if a := strings.TrimSpace(f.Action); a != "" {
		add("a.action = $%d", a)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *repository) TimelineWindow(ctx context.Context, params WindowParams) ([]Entry, error) {
	where, args := whereClause(params.TimelineFilters)
	args = append(args, params.Limit, params.Offset)
	query := fmt.Sprintf("%s%s ORDER BY a.occurred_at DESC, a.id DESC LIMIT $%d OFFSET $%d",
		entrySelect, where, len(args)-1, len(args))
	return r.query(ctx, query, args...)
}

func (r *repository) TimelineAll(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	where, args := whereClause(filters)
	return r.query(ctx, entrySelect+where+" ORDER BY a.occurred_at DESC, a.id DESC", args...)
}

func (r *repository) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var meta []byte
	if err := row.Scan(&e.ID, &e.At, &e.ActorID, &e.ActorName, &e.Action, &e.Entity, &e.EntityID, &meta); err != nil {
		return Entry{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Meta); err != nil {
			return Entry{}, fmt.Errorf("audit: decode meta: %w", err)
		}
	}
	return e, nil
}
