package service

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/closetmatrix/closet-matrix/internal/apperror"
	"github.com/closetmatrix/closet-matrix/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUserRepo is an in-memory UserRepository that enforces the same
// uniqueness rules as the real schema.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[int64]*model.User
	nextID int64

	// beforeCreate runs once, just before the next insert, to simulate a
	// concurrent registration.
	beforeCreate func(f *fakeUserRepo)
	lookupErr    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*model.User), nextID: 1}
}

func (f *fakeUserRepo) insertLocked(u *model.User) error {
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return apperror.Conflict("user", "email")
		}
		if existing.Username == u.Username {
			return apperror.Conflict("user", "username")
		}
	}
	u.ID = f.nextID
	f.nextID++
	u.CreatedAt = time.Now().UTC()
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func (f *fakeUserRepo) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	hook := f.beforeCreate
	f.beforeCreate = nil
	f.mu.Unlock()
	if hook != nil {
		hook(f)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	u.Email = strings.ToLower(u.Email)
	return f.insertLocked(u)
}

// add inserts a user directly, bypassing hooks.
func (f *fakeUserRepo) add(u *model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = f.insertLocked(u)
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) UsernameExists(_ context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", strconv.FormatInt(id, 10))
	}
	u.LastLogin = &at
	return nil
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts []model.LoginAttempt
}

func (f *fakeAttemptRepo) RecordLoginAttempt(_ context.Context, a *model.LoginAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, *a)
	return nil
}

func (f *fakeAttemptRepo) CountFailedLoginsSince(_ context.Context, email string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.attempts {
		if a.Email == email && !a.Success && !a.AttemptedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeAttemptRepo) all() []model.LoginAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.LoginAttempt(nil), f.attempts...)
}

// fakePrefsRepo stores one Preferences per user.
type fakePrefsRepo struct {
	rows    map[int64]*model.Preferences
	failErr error
}

func newFakePrefsRepo() *fakePrefsRepo {
	return &fakePrefsRepo{rows: make(map[int64]*model.Preferences)}
}

func (f *fakePrefsRepo) row(userID int64) *model.Preferences {
	p, ok := f.rows[userID]
	if !ok {
		p = model.EmptyPreferences(userID)
		f.rows[userID] = p
	}
	return p
}

func (f *fakePrefsRepo) GetPreferences(_ context.Context, userID int64) (*model.Preferences, error) {
	p, ok := f.rows[userID]
	if !ok {
		return nil, apperror.NotFound("preferences", strconv.FormatInt(userID, 10))
	}
	copied := *p
	copied.Colors = append([]string{}, p.Colors...)
	copied.StyleTags = append([]string{}, p.StyleTags...)
	return &copied, nil
}

func (f *fakePrefsRepo) SetColors(_ context.Context, userID int64, colors []string) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.row(userID).Colors = append([]string{}, colors...)
	return nil
}

func (f *fakePrefsRepo) MergeSizes(_ context.Context, userID int64, u model.SizeUpdate) error {
	if f.failErr != nil {
		return f.failErr
	}
	p := f.row(userID)
	p.Sizes = u.Apply(p.Sizes)
	return nil
}

func (f *fakePrefsRepo) SetStyleTags(_ context.Context, userID int64, tags []string) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.row(userID).StyleTags = append([]string{}, tags...)
	return nil
}
