package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client), mr
}

func TestRedisStore_SaveGetDelete(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	s := &Session{Token: "abc", Identity: jane, CreatedAt: time.Now().UTC()}
	if err := store.Save(ctx, s, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !mr.Exists("sess:abc") {
		t.Fatal("expected key sess:abc")
	}
	if ttl := mr.TTL("sess:abc"); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}

	got, err := store.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Token != "abc" || got.UserID != 7 || got.Email != "jane@example.com" {
		t.Errorf("Get = %+v", got)
	}

	if err := store.Delete(ctx, "abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "abc"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestRedisStore_KeyExpires(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, &Session{Token: "abc"}, time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after TTL = %v, want ErrNotFound", err)
	}
}

func TestRedisStore_WithManager(t *testing.T) {
	store, _ := newTestRedisStore(t)
	m := NewManager(store, Options{}, discardLogger())
	ctx := context.Background()

	s, err := m.Create(ctx, jane)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := m.Resolve(ctx, s.Token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.UserID != jane.UserID {
		t.Errorf("UserID = %d, want %d", got.UserID, jane.UserID)
	}

	if err := m.Destroy(ctx, s.Token); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := m.Resolve(ctx, s.Token); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve after Destroy = %v, want ErrNotFound", err)
	}
}

func TestRedisStore_TouchRequiresExistingKey(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	s := &Session{Token: "tok", Identity: jane}

	if err := store.Touch(ctx, s, time.Hour); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Touch unknown token = %v, want ErrNotFound", err)
	}
	if mr.Exists("sess:tok") {
		t.Fatal("Touch created the key")
	}

	if err := store.Save(ctx, s, time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Touch(ctx, s, time.Hour); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if ttl := mr.TTL("sess:tok"); ttl != time.Hour {
		t.Errorf("TTL after Touch = %v, want 1h", ttl)
	}
}
