package backup

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mobtrack/backend/internal/domain/note"
	"github.com/mobtrack/backend/internal/domain/user"
)

// Document is the portable backup a user can download and re-upload. The
// field names are the contract the existing app files already use, so they
// stay exactly as they are.
type Document struct {
	User  UserBlock    `json:"usuario"`
	Notes []NoteRecord `json:"anotacoes"`
}

type UserBlock struct {
	ID       int64  `json:"id"`
	Name     string `json:"nome"`
	Email    string `json:"email"`
	Whatsapp string `json:"whatsapp"`
}

type NoteRecord struct {
	ID          int64            `json:"id"`
	CycleID     int              `json:"cicloId"`
	CycleDay    int              `json:"diaCiclo"`
	CycleType   *string          `json:"tipoCiclo"`
	Date        string           `json:"data"`
	Feeling     string           `json:"sinto"`
	Appearance  string           `json:"vejo"`
	Flow        *string          `json:"regra"`
	Temp        note.Temperature `json:"temp"`
	Intercourse bool             `json:"relacao"`
	Observation string           `json:"obs"`
	Seal        *note.Seal       `json:"selo"`
}

var ErrEmptyDocument = errors.New("backup document has no notes")

// Export builds the document for one user and everything they own.
func Export(u user.User, notes []note.Note) Document {
	records := make([]NoteRecord, 0, len(notes))

	for _, n := range notes {
		records = append(records, NoteRecord{
			ID:          n.ID,
			CycleID:     n.CycleID,
			CycleDay:    n.CycleDay,
			CycleType:   n.CycleType,
			Date:        n.Date,
			Feeling:     n.Feeling,
			Appearance:  n.Appearance,
			Flow:        n.Flow,
			Temp:        note.Temperature{Value: n.Temp},
			Intercourse: n.Intercourse,
			Observation: n.Observation,
			Seal:        n.Seal,
		})
	}

	return Document{
		User: UserBlock{
			ID:       u.ID,
			Name:     u.Name,
			Email:    u.Email,
			Whatsapp: u.Whatsapp,
		},
		Notes: records,
	}
}

// Decode parses an uploaded document and converts every record into an
// insert request. The usuario block and note ids are ignored on import; ids
// are server-assigned. Any malformed record fails the whole decode, so a
// restore never half-applies.
func Decode(raw []byte) ([]note.UpsertNoteRequest, error) {
	var doc Document

	err := json.Unmarshal(raw, &doc)

	if err != nil {
		return nil, fmt.Errorf("parse backup document: %w", err)
	}

	if len(doc.Notes) == 0 {
		return nil, ErrEmptyDocument
	}

	reqs := make([]note.UpsertNoteRequest, 0, len(doc.Notes))

	for i, rec := range doc.Notes {
		if rec.Date == "" {
			return nil, fmt.Errorf("record %d: missing data field", i)
		}

		if rec.CycleID <= 0 || rec.CycleDay <= 0 {
			return nil, fmt.Errorf("record %d: invalid cicloId/diaCiclo", i)
		}

		reqs = append(reqs, note.UpsertNoteRequest{
			CycleID:     rec.CycleID,
			CycleDay:    rec.CycleDay,
			CycleType:   rec.CycleType,
			Date:        rec.Date,
			Feeling:     rec.Feeling,
			Appearance:  rec.Appearance,
			Flow:        rec.Flow,
			Temp:        rec.Temp,
			Intercourse: rec.Intercourse,
			Observation: rec.Observation,
			Seal:        rec.Seal,
		})
	}

	return reqs, nil
}
