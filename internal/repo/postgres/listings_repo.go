package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/docdirectory/internal/domain/listing"
	"github.com/geocoder89/docdirectory/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ListingsRepo serves one listing table. Column lists come from the schema, never from input.
type ListingsRepo struct {
	observer
	pool   *pgxpool.Pool
	schema listing.Schema
	fields []listing.Field
}

func NewListingsRepo(pool *pgxpool.Pool, prom *observability.Prom, schema listing.Schema) *ListingsRepo {
	return &ListingsRepo{
		observer: observer{prom: prom},
		pool:     pool,
		schema:   schema,
		fields:   schema.Fields(),
	}
}

func (r *ListingsRepo) op(name string) string {
	return r.schema.Table + "." + name
}

func (r *ListingsRepo) selectSQL() string {
	cols := make([]string, 0, len(r.fields)+5)
	cols = append(cols, "id", "slug", "user_id", "created_at", "updated_at")
	for _, f := range r.fields {
		cols = append(cols, f.Column)
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM " + r.schema.Table
}

func (r *ListingsRepo) scan(row pgx.Row) (listing.Listing, error) {
	l := listing.Listing{Kind: r.schema.Kind, Attrs: make(map[string]*string, len(r.fields))}
	vals := make([]*string, len(r.fields))

	dest := []any{&l.ID, &l.Slug, &l.UserID, &l.CreatedAt, &l.UpdatedAt}
	for i := range vals {
		dest = append(dest, &vals[i])
	}

	if err := row.Scan(dest...); err != nil {
		return listing.Listing{}, err
	}

	for i, f := range r.fields {
		l.Set(f.Key, vals[i])
	}
	return l, nil
}

func (r *ListingsRepo) queryMany(ctx context.Context, op, query string, args ...any) ([]listing.Listing, error) {
	out := make([]listing.Listing, 0)

	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			l, err := r.scan(rows)
			if err != nil {
				return err
			}
			out = append(out, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ListingsRepo) queryOne(ctx context.Context, op, query string, args ...any) (listing.Listing, error) {
	var l listing.Listing

	err := r.observe(op, func() error {
		var err error
		l, err = r.scan(r.pool.QueryRow(ctx, query, args...))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return listing.Listing{}, err
	}
	if l.ID == 0 {
		return listing.Listing{}, listing.ErrNotFound
	}
	return l, nil
}

func (r *ListingsRepo) Create(ctx context.Context, l listing.Listing) (listing.Listing, error) {
	now := time.Now().UTC()
	l.Kind = r.schema.Kind
	l.CreatedAt = now
	l.UpdatedAt = now

	cols := []string{"slug", "user_id", "created_at", "updated_at"}
	args := []any{l.Slug, l.UserID, l.CreatedAt, l.UpdatedAt}
	for _, f := range r.fields {
		cols = append(cols, f.Column)
		args = append(args, l.Get(f.Key))
	}

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		r.schema.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)

	err := r.observe(r.op("create"), func() error {
		return r.pool.QueryRow(ctx, query, args...).Scan(&l.ID)
	})
	if err != nil {
		return listing.Listing{}, err
	}
	return l, nil
}

func (r *ListingsRepo) GetByID(ctx context.Context, id int64) (listing.Listing, error) {
	return r.queryOne(ctx, r.op("get_by_id"), r.selectSQL()+" WHERE id = $1", id)
}

// scopeConds matches scope values after the same normalization applied to user input.
func (r *ListingsRepo) scopeConds(scope map[string]string, argPos int) ([]string, []any) {
	var conds []string
	var args []any

	for _, key := range r.schema.Scope {
		col, _ := r.schema.ColumnFor(key)
		conds = append(conds, fmt.Sprintf(`regexp_replace(lower(trim(coalesce(%s, ''))), '\s+', '-', 'g') = $%d`, col, argPos))
		args = append(args, listing.NormalizeScope(scope[key]))
		argPos++
	}
	return conds, args
}

// GetByIdentity resolves a public URL. Duplicates resolve to the lowest id.
func (r *ListingsRepo) GetByIdentity(ctx context.Context, slug string, scope map[string]string) (listing.Listing, error) {
	conds, args := r.scopeConds(scope, 2)
	conds = append([]string{"slug = $1"}, conds...)
	args = append([]any{slug}, args...)

	query := r.selectSQL() + " WHERE " + strings.Join(conds, " AND ") + " ORDER BY id ASC LIMIT 1"
	return r.queryOne(ctx, r.op("get_by_identity"), query, args...)
}

func (r *ListingsRepo) SlugExists(ctx context.Context, candidate string, scope map[string]string, excludeID int64) (bool, error) {
	conds, args := r.scopeConds(scope, 3)
	conds = append([]string{"slug = $1", "id <> $2"}, conds...)
	args = append([]any{candidate, excludeID}, args...)

	query := "SELECT EXISTS (SELECT 1 FROM " + r.schema.Table + " WHERE " + strings.Join(conds, " AND ") + ")"

	var exists bool
	err := r.observe(r.op("slug_exists"), func() error {
		return r.pool.QueryRow(ctx, query, args...).Scan(&exists)
	})
	return exists, err
}

func (r *ListingsRepo) ListByOwner(ctx context.Context, userID int64) ([]listing.Listing, error) {
	return r.queryMany(ctx, r.op("list_by_owner"),
		r.selectSQL()+" WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
}

func (r *ListingsRepo) Filter(ctx context.Context, f listing.Filter) ([]listing.Listing, error) {
	var conds []string
	var args []any
	argsPosition := 1

	add := func(col, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		conds = append(conds, fmt.Sprintf(`%s ILIKE $%d ESCAPE '\'`, col, argsPosition))
		args = append(args, containsPattern(strings.TrimSpace(value)))
		argsPosition++
	}

	add("name", f.Name)
	add("area", f.Area)
	filterCol, _ := r.schema.ColumnFor(r.schema.FilterKey)
	add(filterCol, f.Key)

	query := r.selectSQL()
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	return r.queryMany(ctx, r.op("filter"), query, args...)
}

func (r *ListingsRepo) Search(ctx context.Context, q listing.SearchQuery) ([]listing.Listing, error) {
	var conds []string
	var args []any
	argsPosition := 1

	if area := strings.TrimSpace(q.Area); area != "" {
		conds = append(conds, fmt.Sprintf("lower(area) = lower($%d)", argsPosition))
		args = append(args, area)
		argsPosition++
	}
	if spec := strings.TrimSpace(q.Specialty); spec != "" && r.schema.SpecialtyColumn != "" {
		conds = append(conds, fmt.Sprintf("lower(%s) = lower($%d)", r.schema.SpecialtyColumn, argsPosition))
		args = append(args, spec)
	}

	query := r.selectSQL()
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	return r.queryMany(ctx, r.op("search"), query, args...)
}

func (r *ListingsRepo) Latest(ctx context.Context, limit int) ([]listing.Summary, error) {
	query := fmt.Sprintf(
		"SELECT id, name, category, area, slug, %s FROM %s ORDER BY created_at DESC, id DESC LIMIT $1",
		r.schema.PrimaryImage().Column, r.schema.Table,
	)

	out := make([]listing.Summary, 0, limit)

	err := r.observe(r.op("latest"), func() error {
		rows, err := r.pool.Query(ctx, query, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var s listing.Summary
			if err := rows.Scan(&s.ID, &s.Name, &s.Category, &s.Area, &s.Slug, &s.Image); err != nil {
				return err
			}
			s.Image = listing.FirstImage(s.Image)
			out = append(out, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ListingsRepo) Update(ctx context.Context, l listing.Listing) (listing.Listing, error) {
	sets := []string{"slug = $2", "updated_at = $3"}
	now := time.Now().UTC()
	args := []any{l.ID, l.Slug, now}

	for _, f := range r.fields {
		args = append(args, l.Get(f.Key))
		sets = append(sets, fmt.Sprintf("%s = $%d", f.Column, len(args)))
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1", r.schema.Table, strings.Join(sets, ", "))

	var affected int64
	err := r.observe(r.op("update"), func() error {
		ct, err := r.pool.Exec(ctx, query, args...)
		affected = ct.RowsAffected()
		return err
	})
	if err != nil {
		return listing.Listing{}, err
	}
	if affected == 0 {
		return listing.Listing{}, listing.ErrNotFound
	}

	l.UpdatedAt = now
	return l, nil
}

func (r *ListingsRepo) Delete(ctx context.Context, id int64) error {
	var affected int64

	err := r.observe(r.op("delete"), func() error {
		ct, err := r.pool.Exec(ctx, "DELETE FROM "+r.schema.Table+" WHERE id = $1", id)
		affected = ct.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return listing.ErrNotFound
	}
	return nil
}
