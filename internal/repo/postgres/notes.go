package postgres

import (
	"context"
	"errors"

	"github.com/mobtrack/backend/internal/domain/note"
	"github.com/mobtrack/backend/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NotesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewNotesRepo(pool *pgxpool.Pool, prom *observability.Prom) *NotesRepo {
	return &NotesRepo{pool: pool, prom: prom}
}

func (r *NotesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const noteColumns = `id, user_id, cycle_id, cycle_day, cycle_type, date, feeling, appearance, flow, temperature, intercourse, observation, seal_json, created_at, updated_at`

func scanNote(row pgx.Row) (note.Note, error) {
	var n note.Note
	var sealJSON *string

	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.CycleID,
		&n.CycleDay,
		&n.CycleType,
		&n.Date,
		&n.Feeling,
		&n.Appearance,
		&n.Flow,
		&n.Temp,
		&n.Intercourse,
		&n.Observation,
		&sealJSON,
		&n.CreatedAt,
		&n.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return note.Note{}, note.ErrNotFound
		}
		return note.Note{}, err
	}

	n.Seal, err = note.DecodeSeal(sealJSON)

	if err != nil {
		return note.Note{}, err
	}

	return n, nil
}

// Upsert resolves the target row, then overwrites every scalar field from
// the payload. Resolution order:
//  1. id + owner, when an id came with the payload; a miss falls through to
//     a fresh insert (the stale id is ignored, never an error)
//  2. (owner, cycle, day) to dedupe the daily entry
//  3. insert
func (r *NotesRepo) Upsert(ctx context.Context, userID int64, req note.UpsertNoteRequest) (note.Note, error) {
	sealJSON, err := note.EncodeSeal(req.Seal)

	if err != nil {
		return note.Note{}, err
	}

	var n note.Note

	err = r.observe("notes.upsert", func() (err error) {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

		if err != nil {
			return err
		}

		defer func() { _ = tx.Rollback(ctx) }()

		var targetID *int64

		if req.ID != nil {
			var id int64

			err = tx.QueryRow(ctx,
				`SELECT id FROM notes WHERE id = $1 AND user_id = $2`,
				*req.ID, userID,
			).Scan(&id)

			switch {
			case err == nil:
				targetID = &id
			case errors.Is(err, pgx.ErrNoRows):
				// stale or foreign id: fall through to a fresh insert
			default:
				return err
			}
		} else {
			var id int64

			err = tx.QueryRow(ctx,
				`SELECT id FROM notes
				 WHERE user_id = $1 AND cycle_id = $2 AND cycle_day = $3
				 ORDER BY id ASC
				 LIMIT 1`,
				userID, req.CycleID, req.CycleDay,
			).Scan(&id)

			switch {
			case err == nil:
				targetID = &id
			case errors.Is(err, pgx.ErrNoRows):
			default:
				return err
			}
		}

		if targetID != nil {
			n, err = scanNote(tx.QueryRow(ctx, `
				UPDATE notes
				SET cycle_id = $2,
				    cycle_day = $3,
				    cycle_type = $4,
				    date = $5,
				    feeling = $6,
				    appearance = $7,
				    flow = $8,
				    temperature = $9,
				    intercourse = $10,
				    observation = $11,
				    seal_json = $12,
				    updated_at = NOW()
				WHERE id = $1
				RETURNING `+noteColumns,
				*targetID, req.CycleID, req.CycleDay, req.CycleType, req.Date,
				req.Feeling, req.Appearance, req.Flow, req.Temp.Value,
				req.Intercourse, req.Observation, sealJSON,
			))
		} else {
			n, err = scanNote(tx.QueryRow(ctx, `
				INSERT INTO notes (user_id, cycle_id, cycle_day, cycle_type, date, feeling, appearance, flow, temperature, intercourse, observation, seal_json)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
				RETURNING `+noteColumns,
				userID, req.CycleID, req.CycleDay, req.CycleType, req.Date,
				req.Feeling, req.Appearance, req.Flow, req.Temp.Value,
				req.Intercourse, req.Observation, sealJSON,
			))
		}

		if err != nil {
			return err
		}

		return tx.Commit(ctx)
	})

	if err != nil {
		return note.Note{}, err
	}

	return n, nil
}

// DeleteOne only deletes a note the caller owns. A miss (foreign or
// nonexistent note) is reported through the returned count, not an error;
// the API stays permissive on purpose.
func (r *NotesRepo) DeleteOne(ctx context.Context, userID, noteID int64) (deleted bool, err error) {
	var tag pgconn.CommandTag

	err = r.observe("notes.delete_one", func() error {
		tag, err = r.pool.Exec(ctx,
			`DELETE FROM notes WHERE id = $1 AND user_id = $2`, noteID, userID)
		return err
	})

	if err != nil {
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}

func (r *NotesRepo) ClearAll(ctx context.Context, userID int64) (int64, error) {
	var tag pgconn.CommandTag
	var err error

	err = r.observe("notes.clear_all", func() error {
		tag, err = r.pool.Exec(ctx, `DELETE FROM notes WHERE user_id = $1`, userID)
		return err
	})

	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

// ListByUser orders by the stored date string. Lexical, not calendar-aware;
// the UI writes ISO dates so the two coincide.
func (r *NotesRepo) ListByUser(ctx context.Context, userID int64) (notes []note.Note, err error) {
	var rows pgx.Rows

	err = r.observe("notes.list_by_user", func() error {
		rows, err = r.pool.Query(ctx,
			`SELECT `+noteColumns+`
			 FROM notes
			 WHERE user_id = $1
			 ORDER BY date ASC, id ASC`,
			userID,
		)
		return err
	})

	if err != nil {
		return
	}

	defer rows.Close()

	notes = make([]note.Note, 0)

	for rows.Next() {
		var n note.Note
		var sealJSON *string

		e := rows.Scan(&n.ID, &n.UserID, &n.CycleID, &n.CycleDay, &n.CycleType, &n.Date, &n.Feeling, &n.Appearance, &n.Flow, &n.Temp, &n.Intercourse, &n.Observation, &sealJSON, &n.CreatedAt, &n.UpdatedAt)

		if e != nil {
			err = e
			return
		}

		n.Seal, e = note.DecodeSeal(sealJSON)

		if e != nil {
			err = e
			return
		}

		notes = append(notes, n)
	}

	err = rows.Err()
	return
}

// InsertBatch creates brand-new rows for every record in one transaction.
// Used by restore: no dedup against existing notes, and any failure rolls
// the whole batch back.
func (r *NotesRepo) InsertBatch(ctx context.Context, userID int64, reqs []note.UpsertNoteRequest) (int, error) {
	inserted := 0

	err := r.observe("notes.insert_batch", func() (err error) {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

		if err != nil {
			return err
		}

		defer func() { _ = tx.Rollback(ctx) }()

		for _, req := range reqs {
			sealJSON, err := note.EncodeSeal(req.Seal)

			if err != nil {
				return err
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO notes (user_id, cycle_id, cycle_day, cycle_type, date, feeling, appearance, flow, temperature, intercourse, observation, seal_json)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
				userID, req.CycleID, req.CycleDay, req.CycleType, req.Date,
				req.Feeling, req.Appearance, req.Flow, req.Temp.Value,
				req.Intercourse, req.Observation, sealJSON,
			)

			if err != nil {
				return err
			}
			inserted++
		}

		return tx.Commit(ctx)
	})

	if err != nil {
		return 0, err
	}

	return inserted, nil
}
