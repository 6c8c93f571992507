package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mobtrack/backend/internal/auth"
	"github.com/mobtrack/backend/internal/config"
	"github.com/mobtrack/backend/internal/domain/user"
	"github.com/mobtrack/backend/internal/http/handlers"
	"github.com/mobtrack/backend/internal/jobs"
	"github.com/mobtrack/backend/internal/repo/postgres"
	"github.com/mobtrack/backend/internal/security"
)

func testJWT() *auth.Manager {
	return auth.NewManager("test-secret", 15*time.Minute, 7*24*time.Hour, 30*time.Minute)
}

func testConfig() config.Config {
	return config.Config{Env: "test"}
}

// fakeTx satisfies pgx.Tx for the paths the handler exercises.

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(ctx context.Context) error   { return nil }
func (fakeTx) Rollback(ctx context.Context) error { return nil }

// Fake implementation of the handlers.RefreshTokenStore interface

type fakeRefreshStore struct {
	created      []postgres.RefreshTokenRow
	getFn        func(id string) (postgres.RefreshTokenRow, error)
	revoked      []string
	revokedUsers []int64
}

func (f *fakeRefreshStore) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return fakeTx{}, nil
}

func (f *fakeRefreshStore) Create(ctx context.Context, tx pgx.Tx, row postgres.RefreshTokenRow) error {
	f.created = append(f.created, row)
	return nil
}

func (f *fakeRefreshStore) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (postgres.RefreshTokenRow, error) {
	if f.getFn != nil {
		return f.getFn(id)
	}
	return postgres.RefreshTokenRow{}, postgres.ErrRefreshTokenNotFound
}

func (f *fakeRefreshStore) Revoke(ctx context.Context, tx pgx.Tx, id string, replacedBy *string) error {
	f.revoked = append(f.revoked, id)
	return nil
}

func (f *fakeRefreshStore) RevokeAllForUser(ctx context.Context, tx pgx.Tx, userID int64) error {
	f.revokedUsers = append(f.revokedUsers, userID)
	return nil
}

// Fake implementation of the handlers.AuthUserStore interface

type fakeAuthUsers struct {
	createFn         func(ctx context.Context, name, email, whatsapp, passwordHash string) (user.User, error)
	getByEmailFn     func(ctx context.Context, email string) (user.User, error)
	promoteFn        func(ctx context.Context, userID int64) (bool, error)
	updatePasswordFn func(ctx context.Context, userID int64, passwordHash string) error
}

func (f *fakeAuthUsers) Create(ctx context.Context, name, email, whatsapp, passwordHash string) (user.User, error) {
	if f.createFn != nil {
		return f.createFn(ctx, name, email, whatsapp, passwordHash)
	}
	return user.User{ID: 1, Name: name, Email: email}, nil
}

func (f *fakeAuthUsers) GetByEmail(ctx context.Context, email string) (user.User, error) {
	if f.getByEmailFn != nil {
		return f.getByEmailFn(ctx, email)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeAuthUsers) PromoteIfAdminless(ctx context.Context, userID int64) (bool, error) {
	if f.promoteFn != nil {
		return f.promoteFn(ctx, userID)
	}
	return false, nil
}

func (f *fakeAuthUsers) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	if f.updatePasswordFn != nil {
		return f.updatePasswordFn(ctx, userID, passwordHash)
	}
	return nil
}

type fakeQueue struct {
	enqueued []jobs.Job
	err      error
}

func (f *fakeQueue) Enqueue(ctx context.Context, j jobs.Job) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, j)
	return nil
}

func newAuthHandler(users *fakeAuthUsers, store *fakeRefreshStore, q *fakeQueue) *handlers.AuthHandler {
	return handlers.NewAuthHandler(users, testJWT(), store, q, testConfig(), testLogger())
}

func TestRegisterHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		usersSetUp     func(*fakeAuthUsers)
		wantStatusCode int
		wantAdmin      bool
	}{
		{
			name: "first_user_becomes_admin",
			body: `{"name":"Ana","email":"ana@example.com","password":"segredo123"}`,
			usersSetUp: func(f *fakeAuthUsers) {
				f.promoteFn = func(ctx context.Context, userID int64) (bool, error) { return true, nil }
			},
			wantStatusCode: http.StatusCreated,
			wantAdmin:      true,
		},
		{
			name: "later_user_stays_regular",
			body: `{"name":"Bia","email":"bia@example.com","password":"segredo123"}`,
			usersSetUp: func(f *fakeAuthUsers) {
				f.promoteFn = func(ctx context.Context, userID int64) (bool, error) { return false, nil }
			},
			wantStatusCode: http.StatusCreated,
			wantAdmin:      false,
		},
		{
			name: "duplicate_email",
			body: `{"name":"Ana","email":"ana@example.com","password":"segredo123"}`,
			usersSetUp: func(f *fakeAuthUsers) {
				f.createFn = func(ctx context.Context, name, email, whatsapp, passwordHash string) (user.User, error) {
					return user.User{}, user.ErrDuplicateEmail
				}
			},
			wantStatusCode: http.StatusConflict,
		},
		{
			name:           "short_password",
			body:           `{"name":"Ana","email":"ana@example.com","password":"curta"}`,
			usersSetUp:     func(f *fakeAuthUsers) {},
			wantStatusCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			users := &fakeAuthUsers{}
			tt.usersSetUp(users)
			store := &fakeRefreshStore{}

			h := newAuthHandler(users, store, &fakeQueue{})
			r := setupRouter(http.MethodPost, "/auth/register", h.Register)

			w := doJSON(r, http.MethodPost, "/auth/register", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantStatusCode != http.StatusCreated {
				return
			}

			var resp struct {
				AccessToken string `json:"accessToken"`
				User        struct {
					IsAdmin bool `json:"isAdmin"`
				} `json:"user"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("bad body: %v", err)
			}
			if resp.AccessToken == "" {
				t.Fatal("missing access token")
			}
			if resp.User.IsAdmin != tt.wantAdmin {
				t.Fatalf("isAdmin=%v, want %v", resp.User.IsAdmin, tt.wantAdmin)
			}
			if len(store.created) != 1 {
				t.Fatalf("refresh token rows created: %d, want 1", len(store.created))
			}
		})
	}
}

func TestLoginHandler(t *testing.T) {
	hash, err := security.HashPassword("segredo123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	existing := user.User{ID: 3, Name: "Ana", Email: "ana@example.com", PasswordHash: hash}

	tests := []struct {
		name           string
		body           string
		usersSetUp     func(*fakeAuthUsers)
		wantStatusCode int
	}{
		{
			name: "success",
			body: `{"email":"ana@example.com","password":"segredo123"}`,
			usersSetUp: func(f *fakeAuthUsers) {
				f.getByEmailFn = func(ctx context.Context, email string) (user.User, error) { return existing, nil }
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name: "wrong_password",
			body: `{"email":"ana@example.com","password":"errada999"}`,
			usersSetUp: func(f *fakeAuthUsers) {
				f.getByEmailFn = func(ctx context.Context, email string) (user.User, error) { return existing, nil }
			},
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "unknown_email",
			body:           `{"email":"nope@example.com","password":"segredo123"}`,
			usersSetUp:     func(f *fakeAuthUsers) {},
			wantStatusCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			users := &fakeAuthUsers{}
			tt.usersSetUp(users)

			h := newAuthHandler(users, &fakeRefreshStore{}, &fakeQueue{})
			r := setupRouter(http.MethodPost, "/auth/login", h.Login)

			w := doJSON(r, http.MethodPost, "/auth/login", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestLoginBootstrapsAdminlessSystem(t *testing.T) {
	hash, _ := security.HashPassword("segredo123")

	users := &fakeAuthUsers{
		getByEmailFn: func(ctx context.Context, email string) (user.User, error) {
			return user.User{ID: 3, Email: email, PasswordHash: hash}, nil
		},
		promoteFn: func(ctx context.Context, userID int64) (bool, error) { return true, nil },
	}

	h := newAuthHandler(users, &fakeRefreshStore{}, &fakeQueue{})
	r := setupRouter(http.MethodPost, "/auth/login", h.Login)

	w := doJSON(r, http.MethodPost, "/auth/login", `{"email":"ana@example.com","password":"segredo123"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		User struct {
			IsAdmin bool `json:"isAdmin"`
		} `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if !resp.User.IsAdmin {
		t.Fatal("adminless login must promote the user")
	}
}

func TestForgotNeverLeaksAccountExistence(t *testing.T) {
	hash, _ := security.HashPassword("segredo123")

	tests := []struct {
		name        string
		usersSetUp  func(*fakeAuthUsers)
		wantEnqueue int
	}{
		{
			name: "known_email_enqueues_job",
			usersSetUp: func(f *fakeAuthUsers) {
				f.getByEmailFn = func(ctx context.Context, email string) (user.User, error) {
					return user.User{ID: 3, Name: "Ana", Email: email, PasswordHash: hash}, nil
				}
			},
			wantEnqueue: 1,
		},
		{
			name:        "unknown_email_is_silent",
			usersSetUp:  func(f *fakeAuthUsers) {},
			wantEnqueue: 0,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			users := &fakeAuthUsers{}
			tt.usersSetUp(users)
			q := &fakeQueue{}

			h := newAuthHandler(users, &fakeRefreshStore{}, q)
			r := setupRouter(http.MethodPost, "/auth/forgot", h.Forgot)

			w := doJSON(r, http.MethodPost, "/auth/forgot", `{"email":"ana@example.com"}`)

			// the answer must be identical either way
			if w.Code != http.StatusOK {
				t.Fatalf("got %d, want 200, body=%s", w.Code, w.Body.String())
			}

			if len(q.enqueued) != tt.wantEnqueue {
				t.Fatalf("enqueued %d jobs, want %d", len(q.enqueued), tt.wantEnqueue)
			}
			if tt.wantEnqueue == 1 && q.enqueued[0].Type != jobs.JobSendPasswordReset {
				t.Fatalf("wrong job type: %s", q.enqueued[0].Type)
			}
		})
	}
}

func TestResetHandler(t *testing.T) {
	jwt := testJWT()

	token, err := jwt.GeneratePasswordResetToken(3, "ana@example.com")
	if err != nil {
		t.Fatalf("reset token: %v", err)
	}

	updated := false
	store := &fakeRefreshStore{}
	users := &fakeAuthUsers{
		updatePasswordFn: func(ctx context.Context, userID int64, passwordHash string) error {
			if userID != 3 {
				t.Fatalf("wrong user id: %d", userID)
			}
			updated = true
			return nil
		},
	}

	h := handlers.NewAuthHandler(users, jwt, store, &fakeQueue{}, testConfig(), testLogger())
	r := setupRouter(http.MethodPost, "/auth/reset", h.Reset)

	w := doJSON(r, http.MethodPost, "/auth/reset", `{"token":"`+token+`","newPassword":"novasenha123"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200, body=%s", w.Code, w.Body.String())
	}
	if !updated {
		t.Fatal("password was not updated")
	}
	if len(store.revokedUsers) != 1 || store.revokedUsers[0] != 3 {
		t.Fatalf("sessions not revoked: %v", store.revokedUsers)
	}
}

func TestResetRejectsWrongTokenType(t *testing.T) {
	jwt := testJWT()

	// an access token must not pass as a reset token
	token, err := jwt.GenerateAccessToken(3, "ana@example.com", false)
	if err != nil {
		t.Fatalf("access token: %v", err)
	}

	h := handlers.NewAuthHandler(&fakeAuthUsers{}, jwt, &fakeRefreshStore{}, &fakeQueue{}, testConfig(), testLogger())
	r := setupRouter(http.MethodPost, "/auth/reset", h.Reset)

	w := doJSON(r, http.MethodPost, "/auth/reset", `{"token":"`+token+`","newPassword":"novasenha123"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401, body=%s", w.Code, w.Body.String())
	}
}
