package user

import (
	"errors"
	"time"
)

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Whatsapp     string    `json:"whatsapp"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already in use")
	ErrValidation     = errors.New("missing required field")
	// governance
	ErrLastAdmin  = errors.New("cannot remove the last administrator")
	ErrSelfDemote = errors.New("cannot demote your own sole admin access")
	ErrNotAdmin   = errors.New("user is not an administrator")
)

type CreateUserRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Whatsapp string `json:"whatsapp" binding:"omitempty,max=20"`
	Password string `json:"password" binding:"required,min=8"`
}

type UpdateProfileRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Whatsapp string `json:"whatsapp" binding:"omitempty,max=20"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

// a full update payload used by the admin panel, not a patch.
type EditUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Whatsapp string `json:"whatsapp"`
}

// Validate enforces the required fields before any mutation happens.
func (r EditUserRequest) Validate() error {
	if r.Name == "" || r.Email == "" {
		return ErrValidation
	}
	return nil
}
