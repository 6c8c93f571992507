package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mobtrack/backend/internal/domain/user"
)

// UsersRepo mirrors the postgres repo semantics for tests. The single mutex
// stands in for the transaction that serializes the admin-count invariant.
type UsersRepo struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]user.User
	notes  *NotesRepo // for cascade delete, may be nil
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		nextID: 1,
		items:  make(map[int64]user.User),
	}
}

// WithNotes wires the notes store so user deletion cascades like the FK does.
func (r *UsersRepo) WithNotes(notes *NotesRepo) *UsersRepo {
	r.notes = notes
	return r
}

func (r *UsersRepo) Create(ctx context.Context, name, email, whatsapp, passwordHash string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.items {
		if u.Email == email {
			return user.User{}, user.ErrDuplicateEmail
		}
	}

	now := time.Now().UTC()

	u := user.User{
		ID:           r.nextID,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Whatsapp:     whatsapp,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.nextID++
	r.items[u.ID] = u

	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.items {
		if u.Email == email {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (r *UsersRepo) GetByID(ctx context.Context, id int64) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]

	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]user.User, 0, len(r.items))

	for _, u := range r.items {
		out = append(out, u)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *UsersRepo) adminCountLocked() int {
	count := 0

	for _, u := range r.items {
		if u.IsAdmin {
			count++
		}
	}
	return count
}

func (r *UsersRepo) PromoteIfAdminless(ctx context.Context, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.adminCountLocked() > 0 {
		return false, nil
	}

	u, ok := r.items[userID]

	if !ok {
		return false, nil
	}

	u.IsAdmin = true
	u.UpdatedAt = time.Now().UTC()
	r.items[userID] = u

	return true, nil
}

func (r *UsersRepo) UpdateProfile(ctx context.Context, userID int64, name, whatsapp string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[userID]

	if !ok {
		return user.User{}, user.ErrNotFound
	}

	u.Name = name
	u.Whatsapp = whatsapp
	u.UpdatedAt = time.Now().UTC()
	r.items[userID] = u

	return u, nil
}

func (r *UsersRepo) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[userID]

	if !ok {
		return user.ErrNotFound
	}

	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	r.items[userID] = u

	return nil
}

func (r *UsersRepo) Edit(ctx context.Context, userID int64, req user.EditUserRequest) (user.User, error) {
	if err := req.Validate(); err != nil {
		return user.User{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[userID]

	if !ok {
		return user.User{}, user.ErrNotFound
	}

	for _, other := range r.items {
		if other.ID != userID && other.Email == req.Email {
			return user.User{}, user.ErrDuplicateEmail
		}
	}

	u.Name = req.Name
	u.Email = req.Email
	u.Whatsapp = req.Whatsapp
	u.UpdatedAt = time.Now().UTC()
	r.items[userID] = u

	return u, nil
}

func (r *UsersRepo) Promote(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[userID]

	if !ok {
		return user.ErrNotFound
	}

	u.IsAdmin = true
	u.UpdatedAt = time.Now().UTC()
	r.items[userID] = u

	return nil
}

func (r *UsersRepo) Demote(ctx context.Context, callerID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[userID]

	if !ok {
		return user.ErrNotFound
	}

	if !u.IsAdmin {
		return user.ErrNotAdmin
	}

	total := r.adminCountLocked()

	if total <= 1 {
		if userID == callerID {
			return user.ErrSelfDemote
		}
		return user.ErrLastAdmin
	}

	u.IsAdmin = false
	u.UpdatedAt = time.Now().UTC()
	r.items[userID] = u

	return nil
}

func (r *UsersRepo) Delete(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[userID]

	if !ok {
		return user.ErrNotFound
	}

	if u.IsAdmin && r.adminCountLocked() <= 1 {
		return user.ErrLastAdmin
	}

	delete(r.items, userID)

	if r.notes != nil {
		_, _ = r.notes.ClearAll(ctx, userID)
	}

	return nil
}
