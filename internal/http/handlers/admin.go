package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mobtrack/backend/internal/backup"
	"github.com/mobtrack/backend/internal/cache"
	"github.com/mobtrack/backend/internal/config"
	"github.com/mobtrack/backend/internal/domain/note"
	"github.com/mobtrack/backend/internal/domain/user"
	"github.com/mobtrack/backend/internal/http/middlewares"
)

type AdminUserStore interface {
	List(ctx context.Context) ([]user.User, error)
	GetByID(ctx context.Context, id int64) (user.User, error)
	Edit(ctx context.Context, userID int64, req user.EditUserRequest) (user.User, error)
	Promote(ctx context.Context, userID int64) error
	Demote(ctx context.Context, callerID, userID int64) error
	Delete(ctx context.Context, userID int64) error
}

type NotesReader interface {
	ListByUser(ctx context.Context, userID int64) ([]note.Note, error)
}

type AdminHandler struct {
	users AdminUserStore
	notes NotesReader
	cache *cache.Cache
}

func NewAdminHandler(users AdminUserStore, notes NotesReader, listCache *cache.Cache) *AdminHandler {
	return &AdminHandler{users: users, notes: notes, cache: listCache}
}

func (h *AdminHandler) ListUsers(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	users, err := h.users.List(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not list users")
		return
	}

	ctx.JSON(http.StatusOK, users)
}

func (h *AdminHandler) EditUser(ctx *gin.Context) {
	userID, ok := parseUserID(ctx)
	if !ok {
		return
	}

	var req user.EditUserRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	u, err := h.users.Edit(cctx, userID, req)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrValidation):
			RespondBadRequest(ctx, "Name and email are required.", nil)
		case errors.Is(err, user.ErrDuplicateEmail):
			RespondConflict(ctx, "email_taken", "Email is already in use.")
		case errors.Is(err, user.ErrNotFound):
			RespondNotFound(ctx, "User not found")
		default:
			RespondInternal(ctx, "Could not update user")
		}
		return
	}

	ctx.JSON(http.StatusOK, u)
}

func (h *AdminHandler) PromoteUser(ctx *gin.Context) {
	userID, ok := parseUserID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	if err := h.users.Promote(cctx, userID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not promote user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Usuário promovido a administrador."})
}

func (h *AdminHandler) DemoteUser(ctx *gin.Context) {
	callerID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	userID, pok := parseUserID(ctx)
	if !pok {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	if err := h.users.Demote(cctx, callerID, userID); err != nil {
		switch {
		case errors.Is(err, user.ErrNotFound):
			RespondNotFound(ctx, "User not found")
		case errors.Is(err, user.ErrNotAdmin):
			RespondConflict(ctx, "not_admin", "User is not an administrator.")
		case errors.Is(err, user.ErrLastAdmin), errors.Is(err, user.ErrSelfDemote):
			RespondConflict(ctx, "last_admin", "The system must keep at least one administrator.")
		default:
			RespondInternal(ctx, "Could not demote user")
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Privilégios de administrador removidos."})
}

func (h *AdminHandler) DeleteUser(ctx *gin.Context) {
	userID, ok := parseUserID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	if err := h.users.Delete(cctx, userID); err != nil {
		switch {
		case errors.Is(err, user.ErrNotFound):
			RespondNotFound(ctx, "User not found")
		case errors.Is(err, user.ErrLastAdmin):
			RespondConflict(ctx, "last_admin", "The system must keep at least one administrator.")
		default:
			RespondInternal(ctx, "Could not delete user")
		}
		return
	}

	if h.cache != nil {
		h.cache.Delete(notesCacheKey(userID))
	}

	ctx.Status(http.StatusNoContent)
}

// ExportUser hands back the user's full note history as a downloadable
// document that /api/notes/restore accepts.
func (h *AdminHandler) ExportUser(ctx *gin.Context) {
	userID, ok := parseUserID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not export user")
		return
	}

	notes, err := h.notes.ListByUser(cctx, userID)
	if err != nil {
		RespondInternal(ctx, "Could not export user")
		return
	}

	doc := backup.Export(u, notes)

	filename := "backup-" + strconv.FormatInt(u.ID, 10) + ".json"
	ctx.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	ctx.JSON(http.StatusOK, doc)
}

func parseUserID(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		RespondBadRequest(ctx, "Invalid user id", nil)
		return 0, false
	}
	return id, true
}
