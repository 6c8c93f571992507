package note

import (
	"errors"
	"time"
)

// Note is one daily cycle-tracking entry. The JSON field names match the
// document format the mobile UI already speaks, so they stay Portuguese.
type Note struct {
	ID         int64       `json:"id"`
	UserID     int64       `json:"-"`
	CycleID    int         `json:"cicloId"`
	CycleDay   int         `json:"diaCiclo"`
	CycleType  *string     `json:"tipoCiclo"`
	Date       string      `json:"data"`
	Feeling    string      `json:"sinto"`
	Appearance string      `json:"vejo"`
	Flow       *string     `json:"regra"`
	Temp       *float64    `json:"temp"`
	Intercourse bool       `json:"relacao"`
	Observation string     `json:"obs"`
	Seal       *Seal       `json:"selo"`
	CreatedAt  time.Time   `json:"-"`
	UpdatedAt  time.Time   `json:"-"`
}

var ErrNotFound = errors.New("note not found")

// UpsertNoteRequest carries every scalar field; there are no partial updates.
// An id selects an existing note for edit, otherwise the (cycle, day) pair
// dedupes against the owner's notes.
type UpsertNoteRequest struct {
	ID         *int64      `json:"id"`
	CycleID    int         `json:"cicloId" binding:"required,min=1"`
	CycleDay   int         `json:"diaCiclo" binding:"required,min=1"`
	CycleType  *string     `json:"tipoCiclo"`
	Date       string      `json:"data" binding:"required"`
	Feeling    string      `json:"sinto"`
	Appearance string      `json:"vejo"`
	Flow       *string     `json:"regra"`
	Temp       Temperature `json:"temp"`
	Intercourse bool       `json:"relacao"`
	Observation string     `json:"obs"`
	Seal       *Seal       `json:"selo"`
}
