package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mobtrack/backend/internal/backup"
	"github.com/mobtrack/backend/internal/cache"
	"github.com/mobtrack/backend/internal/config"
	"github.com/mobtrack/backend/internal/domain/note"
	"github.com/mobtrack/backend/internal/http/middlewares"
)

type NotesStore interface {
	ListByUser(ctx context.Context, userID int64) ([]note.Note, error)
	Upsert(ctx context.Context, userID int64, req note.UpsertNoteRequest) (note.Note, error)
	DeleteOne(ctx context.Context, userID, noteID int64) (bool, error)
	ClearAll(ctx context.Context, userID int64) (int64, error)
	InsertBatch(ctx context.Context, userID int64, reqs []note.UpsertNoteRequest) (int, error)
}

type NotesHandler struct {
	notes NotesStore
	cache *cache.Cache
	log   *slog.Logger
}

func NewNotesHandler(notes NotesStore, listCache *cache.Cache, log *slog.Logger) *NotesHandler {
	return &NotesHandler{notes: notes, cache: listCache, log: log}
}

func notesCacheKey(userID int64) string {
	return "notes:" + strconv.FormatInt(userID, 10)
}

func (h *NotesHandler) List(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	if h.cache != nil {
		if v, hit := h.cache.Get(notesCacheKey(userID)); hit {
			if notes, ok := v.([]note.Note); ok {
				ctx.JSON(http.StatusOK, notes)
				return
			}
		}
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	notes, err := h.notes.ListByUser(cctx, userID)
	if err != nil {
		RespondInternal(ctx, "Could not list notes")
		return
	}

	if h.cache != nil {
		h.cache.Set(notesCacheKey(userID), notes)
	}

	ctx.JSON(http.StatusOK, notes)
}

func (h *NotesHandler) Upsert(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	var req note.UpsertNoteRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	saved, err := h.notes.Upsert(cctx, userID, req)
	if err != nil {
		RespondInternal(ctx, "Could not save note")
		return
	}

	h.invalidate(userID)

	ctx.JSON(http.StatusOK, saved)
}

func (h *NotesHandler) DeleteOne(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	noteID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || noteID <= 0 {
		RespondBadRequest(ctx, "Invalid note id", nil)
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	deleted, err := h.notes.DeleteOne(cctx, userID, noteID)
	if err != nil {
		RespondInternal(ctx, "Could not delete note")
		return
	}

	// deleting a note that isn't yours (or doesn't exist) is a quiet no-op
	if !deleted {
		h.log.DebugContext(cctx, "note_delete_noop", "user_id", userID, "note_id", noteID)
	}

	h.invalidate(userID)

	ctx.JSON(http.StatusOK, gin.H{"message": "Anotação removida."})
}

func (h *NotesHandler) ClearAll(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	removed, err := h.notes.ClearAll(cctx, userID)
	if err != nil {
		RespondInternal(ctx, "Could not clear notes")
		return
	}

	h.invalidate(userID)

	ctx.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Restore ingests a previously exported backup document and appends its notes
// to the caller's history. The whole batch lands in one transaction.
func (h *NotesHandler) Restore(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	raw, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		RespondBadRequest(ctx, "Could not read request body", nil)
		return
	}

	reqs, err := backup.Decode(raw)
	if err != nil {
		RespondBadRequest(ctx, "Invalid backup document", gin.H{"reason": err.Error()})
		return
	}

	cctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	imported, err := h.notes.InsertBatch(cctx, userID, reqs)
	if err != nil {
		RespondInternal(ctx, "Could not restore backup")
		return
	}

	h.invalidate(userID)

	ctx.JSON(http.StatusOK, gin.H{"imported": imported})
}

func (h *NotesHandler) invalidate(userID int64) {
	if h.cache != nil {
		h.cache.Delete(notesCacheKey(userID))
	}
}
