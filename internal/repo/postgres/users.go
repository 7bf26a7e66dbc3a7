package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/docdirectory/internal/domain/user"
	"github.com/geocoder89/docdirectory/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsersRepo struct {
	observer
	pool *pgxpool.Pool
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{observer: observer{prom: prom}, pool: pool}
}

const userColumns = `id, first_name, last_name, phone, email, password_hash, is_verified, created_at, updated_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Phone,
		&u.Email,
		&u.PasswordHash,
		&u.IsVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	now := time.Now().UTC()
	u.Email = user.NormalizeEmail(u.Email)
	u.CreatedAt = now
	u.UpdatedAt = now

	err := r.observe("users.create", func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO users (first_name, last_name, phone, email, password_hash, is_verified, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			 RETURNING id`,
			u.FirstName, u.LastName, u.Phone, u.Email, u.PasswordHash, u.IsVerified, u.CreatedAt, u.UpdatedAt,
		).Scan(&u.ID)
	})

	if err != nil {
		if IsUniqueViolation(err) {
			return user.User{}, user.ErrDuplicateEmail
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_email", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`,
			user.NormalizeEmail(email),
		))
		if errors.Is(err, user.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return user.User{}, err
	}
	if u.ID == 0 {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id int64) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_id", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`,
			id,
		))
		if errors.Is(err, user.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return user.User{}, err
	}
	if u.ID == 0 {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) MarkVerified(ctx context.Context, id int64) error {
	var tag int64

	err := r.observe("users.mark_verified", func() error {
		ct, err := r.pool.Exec(ctx,
			`UPDATE users SET is_verified = TRUE, updated_at = NOW() WHERE id = $1`,
			id,
		)
		tag = ct.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if tag == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UsersRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	var tag int64

	err := r.observe("users.update_password", func() error {
		ct, err := r.pool.Exec(ctx,
			`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
			id, hash,
		)
		tag = ct.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if tag == 0 {
		return user.ErrNotFound
	}
	return nil
}
