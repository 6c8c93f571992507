package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mobtrack/backend/internal/cache"
	"github.com/mobtrack/backend/internal/domain/note"
	"github.com/mobtrack/backend/internal/http/handlers"
	"github.com/mobtrack/backend/internal/http/middlewares"
)

// Make sure Gin does not spam the console during the test

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

// Fake implementation of the handlers.NotesStore interface

type fakeNotesRepo struct {
	listFn        func(ctx context.Context, userID int64) ([]note.Note, error)
	upsertFn      func(ctx context.Context, userID int64, req note.UpsertNoteRequest) (note.Note, error)
	deleteOneFn   func(ctx context.Context, userID, noteID int64) (bool, error)
	clearAllFn    func(ctx context.Context, userID int64) (int64, error)
	insertBatchFn func(ctx context.Context, userID int64, reqs []note.UpsertNoteRequest) (int, error)
}

func (f *fakeNotesRepo) ListByUser(ctx context.Context, userID int64) ([]note.Note, error) {
	if f.listFn != nil {
		return f.listFn(ctx, userID)
	}
	return []note.Note{}, nil
}

func (f *fakeNotesRepo) Upsert(ctx context.Context, userID int64, req note.UpsertNoteRequest) (note.Note, error) {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, userID, req)
	}
	return note.Note{}, nil
}

func (f *fakeNotesRepo) DeleteOne(ctx context.Context, userID, noteID int64) (bool, error) {
	if f.deleteOneFn != nil {
		return f.deleteOneFn(ctx, userID, noteID)
	}
	return false, nil
}

func (f *fakeNotesRepo) ClearAll(ctx context.Context, userID int64) (int64, error) {
	if f.clearAllFn != nil {
		return f.clearAllFn(ctx, userID)
	}
	return 0, nil
}

func (f *fakeNotesRepo) InsertBatch(ctx context.Context, userID int64, reqs []note.UpsertNoteRequest) (int, error) {
	if f.insertBatchFn != nil {
		return f.insertBatchFn(ctx, userID, reqs)
	}
	return len(reqs), nil
}

// mounts one handler with no identity on the context

func setupRouter(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	r.Handle(method, path, h)

	return r
}

// mounts one handler behind a fake identity, like RequireAuth would

func setupAuthedRouter(method, path string, userID int64, admin bool, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	r.Handle(method, path, func(ctx *gin.Context) {
		ctx.Set(middlewares.CtxUserID, userID)
		ctx.Set(middlewares.CtxAdmin, admin)
	}, h)

	return r
}

func doJSON(r *gin.Engine, method, url, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, url, nil)
	} else {
		req = httptest.NewRequest(method, url, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUpsertNoteHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		repoSetUp      func(*fakeNotesRepo)
		wantStatusCode int
	}{
		{
			name: "success",
			body: `{"cicloId":2,"diaCiclo":14,"data":"2026-02-10","sinto":"úmida","temp":"36,7"}`,
			repoSetUp: func(f *fakeNotesRepo) {
				f.upsertFn = func(ctx context.Context, userID int64, req note.UpsertNoteRequest) (note.Note, error) {
					if req.Temp.Value == nil || *req.Temp.Value != 36.7 {
						t.Fatalf("temp did not bind: %v", req.Temp.Value)
					}
					return note.Note{ID: 1, UserID: userID, CycleID: req.CycleID, CycleDay: req.CycleDay, Date: req.Date}, nil
				}
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "validation_error",
			body:           `{"cicloId":0,"diaCiclo":14,"data":"2026-02-10"}`,
			repoSetUp:      func(f *fakeNotesRepo) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "repo_error",
			body: `{"cicloId":2,"diaCiclo":14,"data":"2026-02-10"}`,
			repoSetUp: func(f *fakeNotesRepo) {
				f.upsertFn = func(ctx context.Context, userID int64, req note.UpsertNoteRequest) (note.Note, error) {
					return note.Note{}, errors.New("db error")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeNotesRepo{}
			tt.repoSetUp(repo)

			h := handlers.NewNotesHandler(repo, nil, testLogger())
			r := setupAuthedRouter(http.MethodPost, "/api/notes", 1, false, h.Upsert)

			w := doJSON(r, http.MethodPost, "/api/notes", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestListNotesUsesCache(t *testing.T) {
	calls := 0

	repo := &fakeNotesRepo{
		listFn: func(ctx context.Context, userID int64) ([]note.Note, error) {
			calls++
			return []note.Note{{ID: 1, UserID: userID, CycleID: 1, CycleDay: 1, Date: "2026-01-01"}}, nil
		},
	}

	listCache := cache.New(time.Minute)
	h := handlers.NewNotesHandler(repo, listCache, testLogger())
	r := setupAuthedRouter(http.MethodGet, "/api/notes", 1, false, h.List)

	for i := 0; i < 3; i++ {
		w := doJSON(r, http.MethodGet, "/api/notes", "")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
	}

	if calls != 1 {
		t.Fatalf("repo hit %d times, want 1", calls)
	}
}

func TestDeleteOneIsSilentWhenMissing(t *testing.T) {
	repo := &fakeNotesRepo{
		deleteOneFn: func(ctx context.Context, userID, noteID int64) (bool, error) {
			return false, nil
		},
	}

	h := handlers.NewNotesHandler(repo, nil, testLogger())
	r := setupAuthedRouter(http.MethodDelete, "/api/notes/:id", 1, false, h.DeleteOne)

	w := doJSON(r, http.MethodDelete, "/api/notes/999", "")
	if w.Code != http.StatusOK {
		t.Fatalf("missing note must still answer 200, got %d", w.Code)
	}
}

func TestDeleteOneRejectsBadID(t *testing.T) {
	h := handlers.NewNotesHandler(&fakeNotesRepo{}, nil, testLogger())
	r := setupAuthedRouter(http.MethodDelete, "/api/notes/:id", 1, false, h.DeleteOne)

	w := doJSON(r, http.MethodDelete, "/api/notes/abc", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}
}

func TestRestoreHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		repoSetUp      func(*fakeNotesRepo)
		wantStatusCode int
	}{
		{
			name: "success",
			body: `{"usuario":{"id":7},"anotacoes":[
				{"cicloId":1,"diaCiclo":1,"data":"2026-01-01"},
				{"cicloId":1,"diaCiclo":2,"data":"2026-01-02"}
			]}`,
			repoSetUp: func(f *fakeNotesRepo) {
				f.insertBatchFn = func(ctx context.Context, userID int64, reqs []note.UpsertNoteRequest) (int, error) {
					if len(reqs) != 2 {
						t.Fatalf("got %d requests, want 2", len(reqs))
					}
					return len(reqs), nil
				}
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "empty_document",
			body:           `{"anotacoes":[]}`,
			repoSetUp:      func(f *fakeNotesRepo) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "malformed_record",
			body:           `{"anotacoes":[{"cicloId":1,"diaCiclo":1}]}`,
			repoSetUp:      func(f *fakeNotesRepo) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "repo_error",
			body: `{"anotacoes":[{"cicloId":1,"diaCiclo":1,"data":"2026-01-01"}]}`,
			repoSetUp: func(f *fakeNotesRepo) {
				f.insertBatchFn = func(ctx context.Context, userID int64, reqs []note.UpsertNoteRequest) (int, error) {
					return 0, errors.New("db error")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeNotesRepo{}
			tt.repoSetUp(repo)

			h := handlers.NewNotesHandler(repo, nil, testLogger())
			r := setupAuthedRouter(http.MethodPost, "/api/notes/restore", 1, false, h.Restore)

			w := doJSON(r, http.MethodPost, "/api/notes/restore", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestClearAllReportsCount(t *testing.T) {
	repo := &fakeNotesRepo{
		clearAllFn: func(ctx context.Context, userID int64) (int64, error) {
			return 5, nil
		},
	}

	h := handlers.NewNotesHandler(repo, nil, testLogger())
	r := setupAuthedRouter(http.MethodDelete, "/api/notes", 1, false, h.ClearAll)

	w := doJSON(r, http.MethodDelete, "/api/notes", "")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}

	var resp struct {
		Removed int64 `json:"removed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp.Removed != 5 {
		t.Fatalf("removed=%d, want 5", resp.Removed)
	}
}
