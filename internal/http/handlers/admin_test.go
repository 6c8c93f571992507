package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/mobtrack/backend/internal/domain/note"
	"github.com/mobtrack/backend/internal/domain/user"
	"github.com/mobtrack/backend/internal/http/handlers"
)

// Fake implementation of the handlers.AdminUserStore interface

type fakeUsersRepo struct {
	listFn    func(ctx context.Context) ([]user.User, error)
	getByIDFn func(ctx context.Context, id int64) (user.User, error)
	editFn    func(ctx context.Context, userID int64, req user.EditUserRequest) (user.User, error)
	promoteFn func(ctx context.Context, userID int64) error
	demoteFn  func(ctx context.Context, callerID, userID int64) error
	deleteFn  func(ctx context.Context, userID int64) error
}

func (f *fakeUsersRepo) List(ctx context.Context) ([]user.User, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return []user.User{}, nil
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id int64) (user.User, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return user.User{ID: id}, nil
}

func (f *fakeUsersRepo) Edit(ctx context.Context, userID int64, req user.EditUserRequest) (user.User, error) {
	if f.editFn != nil {
		return f.editFn(ctx, userID, req)
	}
	return user.User{ID: userID}, nil
}

func (f *fakeUsersRepo) Promote(ctx context.Context, userID int64) error {
	if f.promoteFn != nil {
		return f.promoteFn(ctx, userID)
	}
	return nil
}

func (f *fakeUsersRepo) Demote(ctx context.Context, callerID, userID int64) error {
	if f.demoteFn != nil {
		return f.demoteFn(ctx, callerID, userID)
	}
	return nil
}

func (f *fakeUsersRepo) Delete(ctx context.Context, userID int64) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, userID)
	}
	return nil
}

func TestEditUserHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		repoSetUp      func(*fakeUsersRepo)
		wantStatusCode int
	}{
		{
			name: "success",
			body: `{"name":"Ana Maria","email":"ana@example.com","whatsapp":"+5511999"}`,
			repoSetUp: func(f *fakeUsersRepo) {
				f.editFn = func(ctx context.Context, userID int64, req user.EditUserRequest) (user.User, error) {
					return user.User{ID: userID, Name: req.Name, Email: req.Email}, nil
				}
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name: "validation_error",
			body: `{"name":"","email":"ana@example.com"}`,
			repoSetUp: func(f *fakeUsersRepo) {
				f.editFn = func(ctx context.Context, userID int64, req user.EditUserRequest) (user.User, error) {
					return user.User{}, user.ErrValidation
				}
			},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "duplicate_email",
			body: `{"name":"Ana","email":"taken@example.com"}`,
			repoSetUp: func(f *fakeUsersRepo) {
				f.editFn = func(ctx context.Context, userID int64, req user.EditUserRequest) (user.User, error) {
					return user.User{}, user.ErrDuplicateEmail
				}
			},
			wantStatusCode: http.StatusConflict,
		},
		{
			name: "not_found",
			body: `{"name":"Ana","email":"ana@example.com"}`,
			repoSetUp: func(f *fakeUsersRepo) {
				f.editFn = func(ctx context.Context, userID int64, req user.EditUserRequest) (user.User, error) {
					return user.User{}, user.ErrNotFound
				}
			},
			wantStatusCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeUsersRepo{}
			tt.repoSetUp(repo)

			h := handlers.NewAdminHandler(repo, &fakeNotesRepo{}, nil)
			r := setupAuthedRouter(http.MethodPut, "/admin/users/:id", 1, true, h.EditUser)

			w := doJSON(r, http.MethodPut, "/admin/users/2", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestDemoteUserHandler(t *testing.T) {
	tests := []struct {
		name           string
		repoErr        error
		wantStatusCode int
	}{
		{"success", nil, http.StatusOK},
		{"not_found", user.ErrNotFound, http.StatusNotFound},
		{"not_admin", user.ErrNotAdmin, http.StatusConflict},
		{"last_admin", user.ErrLastAdmin, http.StatusConflict},
		{"self_demote", user.ErrSelfDemote, http.StatusConflict},
		{"db_error", errors.New("db error"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeUsersRepo{
				demoteFn: func(ctx context.Context, callerID, userID int64) error {
					if callerID != 1 {
						t.Fatalf("caller id not threaded: %d", callerID)
					}
					return tt.repoErr
				},
			}

			h := handlers.NewAdminHandler(repo, &fakeNotesRepo{}, nil)
			r := setupAuthedRouter(http.MethodPost, "/admin/users/:id/demote", 1, true, h.DemoteUser)

			w := doJSON(r, http.MethodPost, "/admin/users/2/demote", "")

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestDeleteUserHandler(t *testing.T) {
	tests := []struct {
		name           string
		repoErr        error
		wantStatusCode int
	}{
		{"success", nil, http.StatusNoContent},
		{"not_found", user.ErrNotFound, http.StatusNotFound},
		{"last_admin", user.ErrLastAdmin, http.StatusConflict},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeUsersRepo{
				deleteFn: func(ctx context.Context, userID int64) error {
					return tt.repoErr
				},
			}

			h := handlers.NewAdminHandler(repo, &fakeNotesRepo{}, nil)
			r := setupAuthedRouter(http.MethodDelete, "/admin/users/:id", 1, true, h.DeleteUser)

			w := doJSON(r, http.MethodDelete, "/admin/users/2", "")

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestExportUserHandler(t *testing.T) {
	users := &fakeUsersRepo{
		getByIDFn: func(ctx context.Context, id int64) (user.User, error) {
			return user.User{ID: id, Name: "Ana", Email: "ana@example.com"}, nil
		},
	}
	notes := &fakeNotesRepo{
		listFn: func(ctx context.Context, userID int64) ([]note.Note, error) {
			return []note.Note{{ID: 1, UserID: userID, CycleID: 1, CycleDay: 1, Date: "2026-01-01"}}, nil
		},
	}

	h := handlers.NewAdminHandler(users, notes, nil)
	r := setupAuthedRouter(http.MethodGet, "/admin/users/:id/export", 1, true, h.ExportUser)

	w := doJSON(r, http.MethodGet, "/admin/users/7/export", "")

	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200, body=%s", w.Code, w.Body.String())
	}

	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "backup-7.json") {
		t.Fatalf("bad Content-Disposition: %q", cd)
	}

	var doc struct {
		User struct {
			Name string `json:"nome"`
		} `json:"usuario"`
		Notes []json.RawMessage `json:"anotacoes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if doc.User.Name != "Ana" || len(doc.Notes) != 1 {
		t.Fatalf("unexpected document: %s", w.Body.String())
	}
}

func TestExportUserNotFound(t *testing.T) {
	users := &fakeUsersRepo{
		getByIDFn: func(ctx context.Context, id int64) (user.User, error) {
			return user.User{}, user.ErrNotFound
		},
	}

	h := handlers.NewAdminHandler(users, &fakeNotesRepo{}, nil)
	r := setupAuthedRouter(http.MethodGet, "/admin/users/:id/export", 1, true, h.ExportUser)

	w := doJSON(r, http.MethodGet, "/admin/users/7/export", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", w.Code)
	}
}
