package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/closetmatrix/closet-matrix/internal/apperror"
	"github.com/closetmatrix/closet-matrix/internal/model"
)

var userColumns = []string{
	"id",
	"username",
	"email",
	"password_hash",
	"first_name",
	"last_name",
	"newsletter_subscribed",
	"is_active",
	"last_login",
	"created_at",
}

// CreateUser inserts user and fills in ID and CreatedAt from the database.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	stmt, args, err := s.builder.Insert("users").
		Columns(
			"username",
			"email",
			"password_hash",
			"first_name",
			"last_name",
			"newsletter_subscribed",
			"is_active",
		).
		Values(
			user.Username,
			user.Email,
			user.PasswordHash,
			user.FirstName,
			user.LastName,
			user.Newsletter,
			user.IsActive,
		).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build insert user sql: %w", err)
	}

	if err := s.exec.QueryRow(ctx, stmt, args...).Scan(&user.ID, &user.CreatedAt); err != nil {
		if field, ok := uniqueViolation(err); ok {
			return fmt.Errorf("postgres: inserting user: %w", apperror.Conflict("user", field))
		}
		return fmt.Errorf("postgres: inserting user (email=%s): %w", user.Email, err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return nil
}

// GetUserByEmail looks a user up by its normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.getUser(ctx, squirrel.Eq{"email": email})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("user", email)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: getting user by email: %w", err)
	}
	return u, nil
}

// GetUserByID retrieves a user by primary key.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.getUser(ctx, squirrel.Eq{"id": id})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: getting user %d: %w", id, err)
	}
	return u, nil
}

// UsernameExists reports whether username is taken.
func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.exec.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)", username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: checking username %q: %w", username, err)
	}
	return exists, nil
}

// UpdateLastLogin stamps the last successful login time.
func (s *Store) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	stmt, args, err := s.builder.Update("users").
		Set("last_login", at.UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build update last login sql: %w", err)
	}

	tag, err := s.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("postgres: updating last login for user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", strconv.FormatInt(id, 10))
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, where squirrel.Eq) (*model.User, error) {
	stmt, args, err := s.builder.Select(userColumns...).
		From("users").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	var (
		u         model.User
		lastLogin sql.NullTime
	)
	err = s.exec.QueryRow(ctx, stmt, args...).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Newsletter,
		&u.IsActive,
		&lastLogin,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		u.LastLogin = &t
	}
	return &u, nil
}
