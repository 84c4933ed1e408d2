// Package repository declares the storage capabilities the services depend on.
//
// Implementations live in the sqlite and postgres subpackages. Both enforce
// uniqueness of users.email and users.username with database constraints and
// translate a violation into apperror.Conflict with Field set to the column,
// so concurrent registrations cannot slip past an application-level check.
package repository

import (
	"context"
	"time"

	"github.com/closetmatrix/closet-matrix/internal/model"
)

// UserRepository is the Credential Store.
type UserRepository interface {
	// CreateUser inserts user and sets its ID and CreatedAt.
	// Returns apperror.Conflict (Field "email" or "username") on a duplicate.
	CreateUser(ctx context.Context, user *model.User) error
	// GetUserByEmail matches case-insensitively; apperror.ErrNotFound if absent.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

// PreferencesRepository is the Preferences Store. Every write is a single
// upsert statement, so each update replaces or merges atomically.
type PreferencesRepository interface {
	// GetPreferences returns apperror.ErrNotFound when the user has no row yet.
	GetPreferences(ctx context.Context, userID int64) (*model.Preferences, error)
	SetColors(ctx context.Context, userID int64, colors []string) error
	// MergeSizes overwrites only the non-nil categories of update.
	MergeSizes(ctx context.Context, userID int64, update model.SizeUpdate) error
	SetStyleTags(ctx context.Context, userID int64, tags []string) error
}

// LoginAttemptRepository records login attempts for auditing and throttling.
type LoginAttemptRepository interface {
	RecordLoginAttempt(ctx context.Context, attempt *model.LoginAttempt) error
	CountFailedLoginsSince(ctx context.Context, email string, since time.Time) (int, error)
}

// Store bundles every capability a backend provides.
type Store interface {
	UserRepository
	PreferencesRepository
	LoginAttemptRepository
	Ping(ctx context.Context) error
	Close() error
}
