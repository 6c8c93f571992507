package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate applies the schema on startup. Idempotent; real migrations can
// replace this once the schema stops moving.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            BIGSERIAL PRIMARY KEY,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			whatsapp      TEXT NOT NULL DEFAULT '',
			is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS notes (
			id          BIGSERIAL PRIMARY KEY,
			user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			cycle_id    INT NOT NULL,
			cycle_day   INT NOT NULL,
			cycle_type  TEXT,
			date        TEXT NOT NULL,
			feeling     TEXT NOT NULL DEFAULT '',
			appearance  TEXT NOT NULL DEFAULT '',
			flow        TEXT,
			temperature DOUBLE PRECISION,
			intercourse BOOLEAN NOT NULL DEFAULT FALSE,
			observation TEXT NOT NULL DEFAULT '',
			seal_json   TEXT,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS notes_user_cycle_day_idx
			ON notes (user_id, cycle_id, cycle_day)`,
		`CREATE INDEX IF NOT EXISTS notes_user_date_idx
			ON notes (user_id, date)`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			id          TEXT PRIMARY KEY,
			user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token_hash  TEXT NOT NULL,
			expires_at  TIMESTAMPTZ NOT NULL,
			revoked_at  TIMESTAMPTZ,
			replaced_by TEXT,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range stmts {
		_, err := pool.Exec(ctx, stmt)

		if err != nil {
			return err
		}
	}

	return nil
}
