package postgres

import (
	"context"
	"errors"

	"github.com/mobtrack/backend/internal/domain/user"
	"github.com/mobtrack/backend/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}

const userColumns = `id, name, email, password_hash, whatsapp, is_admin, created_at, updated_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.Whatsapp,
		&u.IsAdmin,
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

func (r *UsersRepo) Create(ctx context.Context, name, email, whatsapp, passwordHash string) (user.User, error) {
	var u user.User
	var err error

	err = r.observe("users.create", func() error {
		u, err = scanUser(r.pool.QueryRow(ctx,
			`INSERT INTO users (name, email, password_hash, whatsapp)
			 VALUES ($1, $2, $3, $4)
			 RETURNING `+userColumns,
			name, email, passwordHash, whatsapp,
		))
		return err
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
	var err error

	err = r.observe("users.get_by_email", func() error {
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
		return err
	})

	return u, err
}

func (r *UsersRepo) GetByID(ctx context.Context, id int64) (user.User, error) {
	var u user.User
	var err error

	err = r.observe("users.get_by_id", func() error {
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
		return err
	})

	return u, err
}

func (r *UsersRepo) List(ctx context.Context) (users []user.User, err error) {
	var rows pgx.Rows

	err = r.observe("users.list", func() error {
		rows, err = r.pool.Query(ctx,
			`SELECT `+userColumns+` FROM users ORDER BY id ASC`)
		return err
	})

	if err != nil {
		return
	}

	defer rows.Close()

	users = make([]user.User, 0)

	for rows.Next() {
		var u user.User

		e := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Whatsapp, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)

		if e != nil {
			err = e
			return
		}
		users = append(users, u)
	}

	err = rows.Err()
	return
}

// PromoteIfAdminless grants the admin flag to userID when no admin exists at
// all. The guard lives inside the UPDATE so the check and the set are one
// statement; two near-simultaneous first logins resolve at the database.
func (r *UsersRepo) PromoteIfAdminless(ctx context.Context, userID int64) (promoted bool, err error) {
	var tag pgconn.CommandTag

	err = r.observe("users.promote_if_adminless", func() error {
		tag, err = r.pool.Exec(ctx, `
			UPDATE users
			SET is_admin = TRUE, updated_at = NOW()
			WHERE id = $1
			  AND NOT EXISTS (SELECT 1 FROM users WHERE is_admin)
		`, userID)
		return err
	})

	if err != nil {
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}

func (r *UsersRepo) UpdateProfile(ctx context.Context, userID int64, name, whatsapp string) (user.User, error) {
	var u user.User
	var err error

	err = r.observe("users.update_profile", func() error {
		u, err = scanUser(r.pool.QueryRow(ctx, `
			UPDATE users
			SET name = $2, whatsapp = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING `+userColumns,
			userID, name, whatsapp,
		))
		return err
	})

	return u, err
}

func (r *UsersRepo) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	return r.observe("users.update_password", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE users
			SET password_hash = $2, updated_at = NOW()
			WHERE id = $1
		`, userID, passwordHash)

		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return user.ErrNotFound
		}
		return nil
	})
}

// Edit is the admin-panel full update. Empty name/email abort before any
// write; a duplicate email belonging to another user maps to
// user.ErrDuplicateEmail via the unique constraint.
func (r *UsersRepo) Edit(ctx context.Context, userID int64, req user.EditUserRequest) (user.User, error) {
	if err := req.Validate(); err != nil {
		return user.User{}, err
	}

	var u user.User
	var err error

	err = r.observe("users.edit", func() error {
		u, err = scanUser(r.pool.QueryRow(ctx, `
			UPDATE users
			SET name = $2, email = $3, whatsapp = $4, updated_at = NOW()
			WHERE id = $1
			RETURNING `+userColumns,
			userID, req.Name, req.Email, req.Whatsapp,
		))
		return err
	})

	if err != nil {
		if IsUniqueViolation(err) {
			return user.User{}, user.ErrDuplicateEmail
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) Promote(ctx context.Context, userID int64) error {
	return r.observe("users.promote", func() error {
		// idempotent: promoting an admin again is a no-op
		tag, err := r.pool.Exec(ctx, `
			UPDATE users
			SET is_admin = TRUE, updated_at = NOW()
			WHERE id = $1
		`, userID)

		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return user.ErrNotFound
		}
		return nil
	})
}

// lockAdmins serializes every admin-count check against concurrent
// demotions/deletions so the count cannot be observed as >1 by two callers
// who then both reduce it to zero.
func lockAdmins(ctx context.Context, tx pgx.Tx) (count int, err error) {
	rows, err := tx.Query(ctx, `SELECT id FROM users WHERE is_admin FOR UPDATE`)

	if err != nil {
		return 0, err
	}

	defer rows.Close()

	for rows.Next() {
		var id int64

		if err = rows.Scan(&id); err != nil {
			return 0, err
		}
		count++
	}

	return count, rows.Err()
}

func (r *UsersRepo) Demote(ctx context.Context, callerID, userID int64) error {
	return r.observe("users.demote", func() (err error) {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

		if err != nil {
			return err
		}

		defer func() { _ = tx.Rollback(ctx) }()

		var isAdmin bool

		err = tx.QueryRow(ctx, `SELECT is_admin FROM users WHERE id = $1`, userID).Scan(&isAdmin)

		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return user.ErrNotFound
			}
			return err
		}

		if !isAdmin {
			return user.ErrNotAdmin
		}

		total, err := lockAdmins(ctx, tx)

		if err != nil {
			return err
		}

		if total <= 1 {
			if userID == callerID {
				return user.ErrSelfDemote
			}
			return user.ErrLastAdmin
		}

		_, err = tx.Exec(ctx, `
			UPDATE users
			SET is_admin = FALSE, updated_at = NOW()
			WHERE id = $1
		`, userID)

		if err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
}

// Delete removes a user and every note they own as one atomic unit. The
// notes FK is ON DELETE CASCADE, so the single statement inside the tx
// covers both.
func (r *UsersRepo) Delete(ctx context.Context, userID int64) error {
	return r.observe("users.delete", func() (err error) {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

		if err != nil {
			return err
		}

		defer func() { _ = tx.Rollback(ctx) }()

		var isAdmin bool

		err = tx.QueryRow(ctx, `SELECT is_admin FROM users WHERE id = $1`, userID).Scan(&isAdmin)

		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return user.ErrNotFound
			}
			return err
		}

		if isAdmin {
			total, err := lockAdmins(ctx, tx)

			if err != nil {
				return err
			}

			if total <= 1 {
				return user.ErrLastAdmin
			}
		}

		_, err = tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)

		if err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
}
