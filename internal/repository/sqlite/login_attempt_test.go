package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/closetmatrix/closet-matrix/internal/model"
)

func TestRecordLoginAttempt_AssignsID(t *testing.T) {
	db := newTestDB(t)

	attempt := &model.LoginAttempt{Email: "jane@example.com", IPAddress: "203.0.113.7"}
	if err := db.RecordLoginAttempt(context.Background(), attempt); err != nil {
		t.Fatalf("RecordLoginAttempt() error = %v", err)
	}
	if attempt.ID == "" {
		t.Error("RecordLoginAttempt() did not set ID")
	}
	if attempt.AttemptedAt.IsZero() {
		t.Error("RecordLoginAttempt() did not set AttemptedAt")
	}
}

func TestCountFailedLoginsSince(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	attempts := []*model.LoginAttempt{
		{Email: "jane@example.com", Success: false, AttemptedAt: now.Add(-2 * time.Hour)},
		{Email: "jane@example.com", Success: false, AttemptedAt: now.Add(-5 * time.Minute)},
		{Email: "JANE@example.com", Success: false, AttemptedAt: now.Add(-1 * time.Minute)},
		{Email: "jane@example.com", Success: true, AttemptedAt: now.Add(-30 * time.Second)},
		{Email: "other@example.com", Success: false, AttemptedAt: now},
	}
	for _, a := range attempts {
		if err := db.RecordLoginAttempt(ctx, a); err != nil {
			t.Fatalf("RecordLoginAttempt() error = %v", err)
		}
	}

	n, err := db.CountFailedLoginsSince(ctx, "jane@example.com", now.Add(-15*time.Minute))
	if err != nil {
		t.Fatalf("CountFailedLoginsSince() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountFailedLoginsSince() = %d, want 2", n)
	}
}
