package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/rs/xid"

	"github.com/closetmatrix/closet-matrix/internal/model"
)

// RecordLoginAttempt appends one row to the login audit trail.
func (s *Store) RecordLoginAttempt(ctx context.Context, attempt *model.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = xid.New().String()
	}
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now()
	}
	attempt.AttemptedAt = attempt.AttemptedAt.UTC()

	stmt, args, err := s.builder.Insert("login_attempts").
		Columns("id", "email", "ip_address", "success", "attempted_at").
		Values(
			attempt.ID,
			strings.ToLower(strings.TrimSpace(attempt.Email)),
			attempt.IPAddress,
			attempt.Success,
			attempt.AttemptedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build insert login attempt sql: %w", err)
	}

	if _, err := s.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("postgres: recording login attempt: %w", err)
	}
	return nil
}

// CountFailedLoginsSince counts failed attempts for email at or after since.
func (s *Store) CountFailedLoginsSince(ctx context.Context, email string, since time.Time) (int, error) {
	stmt, args, err := s.builder.Select("COUNT(*)").
		From("login_attempts").
		Where(squirrel.Eq{"email": strings.ToLower(strings.TrimSpace(email))}).
		Where(squirrel.Eq{"success": false}).
		Where(squirrel.GtOrEq{"attempted_at": since.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("postgres: build count failed logins sql: %w", err)
	}

	var n int
	if err := s.exec.QueryRow(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: counting failed logins: %w", err)
	}
	return n, nil
}
