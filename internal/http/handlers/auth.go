package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/mobtrack/backend/internal/auth"
	"github.com/mobtrack/backend/internal/config"
	"github.com/mobtrack/backend/internal/domain/user"
	"github.com/mobtrack/backend/internal/http/middlewares"
	"github.com/mobtrack/backend/internal/jobs"
	"github.com/mobtrack/backend/internal/repo/postgres"
	"github.com/mobtrack/backend/internal/security"
)

// AuthUserStore is the slice of the users repo the auth flows need.
type AuthUserStore interface {
	Create(ctx context.Context, name, email, whatsapp, passwordHash string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	PromoteIfAdminless(ctx context.Context, userID int64) (bool, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, j jobs.Job) error
}

// RefreshTokenStore abstracts session persistence so handler tests can run
// without a database. *postgres.RefreshTokensRepo satisfies it.
type RefreshTokenStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, row postgres.RefreshTokenRow) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (postgres.RefreshTokenRow, error)
	Revoke(ctx context.Context, tx pgx.Tx, id string, replacedBy *string) error
	RevokeAllForUser(ctx context.Context, tx pgx.Tx, userID int64) error
}

type AuthHandler struct {
	users        AuthUserStore
	jwt          *auth.Manager
	refreshStore RefreshTokenStore
	queue        Enqueuer
	cfg          config.Config
	log          *slog.Logger
}

func NewAuthHandler(users AuthUserStore, jwtManager *auth.Manager, refreshStore RefreshTokenStore, queue Enqueuer, cfg config.Config, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:        users,
		jwt:          jwtManager,
		refreshStore: refreshStore,
		queue:        queue,
		cfg:          cfg,
		log:          log,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req user.CreateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	u, err := h.users.Create(cctx, req.Name, req.Email, req.Whatsapp, hash)

	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			RespondConflict(ctx, "email_taken", "Email is already in use.")
			return
		}

		RespondInternal(ctx, "Could not create user")
		return
	}

	// first account in an adminless system becomes the admin
	promoted, err := h.users.PromoteIfAdminless(cctx, u.ID)

	if err != nil {
		h.log.ErrorContext(cctx, "bootstrap_promote_failed", "error", err, "user_id", u.ID)
	} else if promoted {
		u.IsAdmin = true
	}

	accessToken, err := h.issueSession(ctx, cctx, u)

	if err != nil {
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"accessToken": accessToken,
		"user":        u,
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	err = security.CheckPassword(foundUser.PasswordHash, req.Password)

	if err != nil {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	// recover an adminless install on the next successful login
	if !foundUser.IsAdmin {
		promoted, err := h.users.PromoteIfAdminless(cctx, foundUser.ID)
		if err != nil {
			h.log.ErrorContext(cctx, "bootstrap_promote_failed", "error", err, "user_id", foundUser.ID)
		} else if promoted {
			foundUser.IsAdmin = true
		}
	}

	accessToken, err := h.issueSession(ctx, cctx, foundUser)

	if err != nil {
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken": accessToken,
		"user":        foundUser,
	})
}

func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw, err := ctx.Cookie(h.refreshCookieName())

	if err != nil || raw == "" {
		RespondUnAuthorized(ctx, "no_refresh", "Missing refresh token")
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)

	if err != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	// rotation with a tx with row lock

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tx, err := h.refreshStore.BeginTx(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	defer func() { _ = tx.Rollback(cctx) }()

	row, err := h.refreshStore.GetForUpdate(cctx, tx, claims.JTI)

	if err != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	if row.RevokedAt != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	if time.Now().UTC().After(row.ExpiresAt) {
		RespondUnAuthorized(ctx, "expired_refresh", "Refresh token expired.")
		return
	}

	// verify hash matches the presented token (prevents token substitution)

	if row.TokenHash != h.jwt.HashRefreshToken(raw) {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token.")
		return
	}

	newRaw, newJTI, newExpiresAt, err := h.jwt.GenerateRefreshToken(row.UserID, claims.Email, claims.Admin)
	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	// revoke old, insert new

	err = h.refreshStore.Revoke(cctx, tx, row.ID, &newJTI)

	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	newRow := postgres.RefreshTokenRow{
		ID:        newJTI,
		UserID:    row.UserID,
		TokenHash: h.jwt.HashRefreshToken(newRaw),
		ExpiresAt: newExpiresAt,
		CreatedAt: time.Now().UTC(),
	}

	err = h.refreshStore.Create(cctx, tx, newRow)

	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	err = tx.Commit(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(row.UserID, claims.Email, claims.Admin)
	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	h.setRefreshCookie(ctx, newRaw, newExpiresAt)

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken": accessToken,
	})
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	raw, err := ctx.Cookie(h.refreshCookieName())

	if err != nil || raw == "" {
		// still clear cookie to be safe
		h.clearRefreshCookie(ctx)
		ctx.Status(http.StatusNoContent)
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)
	if err != nil {
		h.clearRefreshCookie(ctx)
		ctx.Status(http.StatusNoContent)
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tx, err := h.refreshStore.BeginTx(cctx)
	if err != nil {
		h.clearRefreshCookie(ctx)
		ctx.Status(http.StatusNoContent)
		return
	}
	defer func() { _ = tx.Rollback(cctx) }()

	// revoke that one token (idempotent)
	_ = h.refreshStore.Revoke(cctx, tx, claims.JTI, nil)
	_ = tx.Commit(cctx)

	h.clearRefreshCookie(ctx)
	ctx.Status(http.StatusNoContent)
}

// Forgot always answers the same way so the endpoint cannot be used to probe
// which emails exist. The reset mail itself is delivered by the worker.
func (h *AuthHandler) Forgot(ctx *gin.Context) {
	var req ForgotPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	resp := gin.H{"message": "Se o email existir, enviaremos as instruções de redefinição."}

	foundUser, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil {
		ctx.JSON(http.StatusOK, resp)
		return
	}

	resetToken, err := h.jwt.GeneratePasswordResetToken(foundUser.ID, foundUser.Email)
	if err != nil {
		h.log.ErrorContext(cctx, "reset_token_failed", "error", err, "user_id", foundUser.ID)
		ctx.JSON(http.StatusOK, resp)
		return
	}

	reqID, _ := ctx.Get(middlewares.CtxRequestID)
	reqIDStr, _ := reqID.(string)

	payload, err := jobs.EncodePayload(jobs.JobSendPasswordReset, jobs.SendPasswordResetPayload{
		UserID:     foundUser.ID,
		Email:      foundUser.Email,
		Name:       foundUser.Name,
		ResetToken: resetToken,
		RequestID:  reqIDStr,
	})
	if err != nil {
		h.log.ErrorContext(cctx, "reset_payload_failed", "error", err, "user_id", foundUser.ID)
		ctx.JSON(http.StatusOK, resp)
		return
	}

	j, err := jobs.NewJob(jobs.JobSendPasswordReset, payload, time.Time{})
	if err == nil {
		err = h.queue.Enqueue(cctx, j)
	}
	if err != nil {
		// swallow delivery failures, the caller gets the same answer either way
		h.log.ErrorContext(cctx, "reset_enqueue_failed", "error", err, "user_id", foundUser.ID)
	}

	ctx.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) Reset(ctx *gin.Context) {
	var req ResetPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	claims, err := h.jwt.VerifyPasswordResetToken(req.Token)
	if err != nil {
		RespondUnAuthorized(ctx, "invalid_reset_token", "Invalid or expired reset token.")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	hash, err := security.HashPassword(req.NewPassword)
	if err != nil {
		RespondInternal(ctx, "Could not reset password")
		return
	}

	if err := h.users.UpdatePassword(cctx, claims.UserID, hash); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondUnAuthorized(ctx, "invalid_reset_token", "Invalid or expired reset token.")
			return
		}
		RespondInternal(ctx, "Could not reset password")
		return
	}

	// a password reset invalidates every open session
	if tx, err := h.refreshStore.BeginTx(cctx); err == nil {
		_ = h.refreshStore.RevokeAllForUser(cctx, tx, claims.UserID)
		_ = tx.Commit(cctx)
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Senha redefinida com sucesso."})
}

// Helper functions

func (h *AuthHandler) issueSession(ctx *gin.Context, cctx context.Context, u user.User) (string, error) {
	accessToken, err := h.jwt.GenerateAccessToken(u.ID, u.Email, u.IsAdmin)

	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return "", err
	}

	rawRefreshToken, jti, expiresAt, err := h.jwt.GenerateRefreshToken(u.ID, u.Email, u.IsAdmin)

	if err != nil {
		RespondInternal(ctx, "Could not generate refresh token")
		return "", err
	}

	if err := h.storeRefreshToken(cctx, u.ID, jti, rawRefreshToken, expiresAt); err != nil {
		RespondInternal(ctx, "Could not create session")
		return "", err
	}

	h.setRefreshCookie(ctx, rawRefreshToken, expiresAt)

	return accessToken, nil
}

func (h *AuthHandler) storeRefreshToken(ctx context.Context, userID int64, jti, raw string, expiresAt time.Time) error {
	tx, err := h.refreshStore.BeginTx(ctx)

	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	row := postgres.RefreshTokenRow{
		ID:        jti,
		UserID:    userID,
		TokenHash: h.jwt.HashRefreshToken(raw),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}

	err = h.refreshStore.Create(ctx, tx, row)

	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (h *AuthHandler) refreshCookieName() string {
	return "refresh_token"
}

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	secure := h.cfg.Env == "prod"

	maxAge := int(time.Until(expiresAt).Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		h.refreshCookieName(),
		raw,
		maxAge,
		"/auth",
		"",
		secure,
		true, // HttpOnly.
	)
}

func (h *AuthHandler) clearRefreshCookie(ctx *gin.Context) {
	secure := h.cfg.Env == "prod"
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(
		h.refreshCookieName(),
		"",
		-1,
		"/auth",
		"",
		secure,
		true,
	)
}
