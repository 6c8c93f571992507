package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mobtrack/backend/internal/domain/note"
)

type NotesRepo struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]note.Note
}

func NewNotesRepo() *NotesRepo {
	return &NotesRepo{
		nextID: 1,
		items:  make(map[int64]note.Note),
	}
}

func (r *NotesRepo) applyLocked(n note.Note, userID int64, req note.UpsertNoteRequest) note.Note {
	n.UserID = userID
	n.CycleID = req.CycleID
	n.CycleDay = req.CycleDay
	n.CycleType = req.CycleType
	n.Date = req.Date
	n.Feeling = req.Feeling
	n.Appearance = req.Appearance
	n.Flow = req.Flow
	n.Temp = req.Temp.Value
	n.Intercourse = req.Intercourse
	n.Observation = req.Observation
	n.Seal = req.Seal
	n.UpdatedAt = time.Now().UTC()
	return n
}

func (r *NotesRepo) Upsert(ctx context.Context, userID int64, req note.UpsertNoteRequest) (note.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var target *note.Note

	if req.ID != nil {
		if n, ok := r.items[*req.ID]; ok && n.UserID == userID {
			target = &n
		}
		// a miss means the stale id is ignored and a fresh note is created
	} else {
		var best *note.Note

		for _, n := range r.items {
			if n.UserID == userID && n.CycleID == req.CycleID && n.CycleDay == req.CycleDay {
				n := n
				if best == nil || n.ID < best.ID {
					best = &n
				}
			}
		}
		target = best
	}

	if target != nil {
		updated := r.applyLocked(*target, userID, req)
		r.items[updated.ID] = updated
		return updated, nil
	}

	n := r.applyLocked(note.Note{}, userID, req)
	n.ID = r.nextID
	n.CreatedAt = n.UpdatedAt
	r.nextID++
	r.items[n.ID] = n

	return n, nil
}

func (r *NotesRepo) DeleteOne(ctx context.Context, userID, noteID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[noteID]

	if !ok || n.UserID != userID {
		return false, nil
	}

	delete(r.items, noteID)
	return true, nil
}

func (r *NotesRepo) ClearAll(ctx context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64

	for id, n := range r.items {
		if n.UserID == userID {
			delete(r.items, id)
			removed++
		}
	}

	return removed, nil
}

func (r *NotesRepo) ListByUser(ctx context.Context, userID int64) ([]note.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]note.Note, 0)

	for _, n := range r.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}

	// lexical date ordering, same as the store
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}

func (r *NotesRepo) InsertBatch(ctx context.Context, userID int64, reqs []note.UpsertNoteRequest) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, req := range reqs {
		n := r.applyLocked(note.Note{}, userID, req)
		n.ID = r.nextID
		n.CreatedAt = n.UpdatedAt
		r.nextID++
		r.items[n.ID] = n
	}

	return len(reqs), nil
}
