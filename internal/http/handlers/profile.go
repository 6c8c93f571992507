package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mobtrack/backend/internal/config"
	"github.com/mobtrack/backend/internal/domain/user"
	"github.com/mobtrack/backend/internal/http/middlewares"
	"github.com/mobtrack/backend/internal/security"
)

type ProfileStore interface {
	GetByID(ctx context.Context, id int64) (user.User, error)
	UpdateProfile(ctx context.Context, userID int64, name, whatsapp string) (user.User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
}

type ProfileHandler struct {
	users ProfileStore
}

func NewProfileHandler(users ProfileStore) *ProfileHandler {
	return &ProfileHandler{users: users}
}

func (h *ProfileHandler) GetMe(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not load profile")
		return
	}

	ctx.JSON(http.StatusOK, u)
}

func (h *ProfileHandler) UpdateMe(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	var req user.UpdateProfileRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	u, err := h.users.UpdateProfile(cctx, userID, req.Name, req.Whatsapp)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not update profile")
		return
	}

	ctx.JSON(http.StatusOK, u)
}

func (h *ProfileHandler) ChangePassword(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	var req user.ChangePasswordRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, userID)
	if err != nil {
		RespondInternal(ctx, "Could not change password")
		return
	}

	if err := security.CheckPassword(u.PasswordHash, req.OldPassword); err != nil {
		RespondUnAuthorized(ctx, "invalid_credentials", "Current password is incorrect.")
		return
	}

	hash, err := security.HashPassword(req.NewPassword)
	if err != nil {
		RespondInternal(ctx, "Could not change password")
		return
	}

	if err := h.users.UpdatePassword(cctx, userID, hash); err != nil {
		RespondInternal(ctx, "Could not change password")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Senha alterada com sucesso."})
}
