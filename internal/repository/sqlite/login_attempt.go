package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/closetmatrix/closet-matrix/internal/model"
)

// RecordLoginAttempt appends one row to the login audit trail.
func (db *DB) RecordLoginAttempt(ctx context.Context, attempt *model.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = xid.New().String()
	}
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now()
	}
	attempt.AttemptedAt = attempt.AttemptedAt.UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO login_attempts (id, email, ip_address, success, attempted_at)
		 VALUES (?, ?, ?, ?, ?)`,
		attempt.ID,
		strings.ToLower(strings.TrimSpace(attempt.Email)),
		attempt.IPAddress,
		attempt.Success,
		attempt.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording login attempt: %w", err)
	}
	return nil
}

// CountFailedLoginsSince counts failed attempts for email at or after since.
func (db *DB) CountFailedLoginsSince(ctx context.Context, email string, since time.Time) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM login_attempts
		 WHERE email = ? AND success = 0 AND attempted_at >= ?`,
		strings.ToLower(strings.TrimSpace(email)), since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting failed logins: %w", err)
	}
	return n, nil
}
