package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T, opts Options) (*Manager, *MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.Now
	m := NewManager(store, opts, discardLogger())
	m.now = clock.Now
	return m, store, clock
}

var jane = Identity{UserID: 7, Username: "janedoe", Email: "jane@example.com", FirstName: "Jane"}

func TestManager_RoundTrip(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})
	ctx := context.Background()

	s, err := m.Create(ctx, jane)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := m.Resolve(ctx, s.Token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.UserID != 7 || got.Username != "janedoe" {
		t.Errorf("resolved %+v, want user 7 janedoe", got.Identity)
	}

	if err := m.Destroy(ctx, s.Token); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := m.Resolve(ctx, s.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve after Destroy: got %v, want ErrNotFound", err)
	}
}

func TestManager_TokensAreUniqueAndLong(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})
	seen := make(map[string]bool)
	for range 50 {
		s, err := m.Create(context.Background(), jane)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		// 32 bytes, unpadded base64url
		if len(s.Token) != 43 {
			t.Fatalf("token length = %d, want 43", len(s.Token))
		}
		if seen[s.Token] {
			t.Fatalf("duplicate token %q", s.Token)
		}
		seen[s.Token] = true
	}
}

func TestManager_DestroyIsIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})
	ctx := context.Background()

	if err := m.Destroy(ctx, "never-issued"); err != nil {
		t.Errorf("Destroy unknown token: %v", err)
	}
	if err := m.Destroy(ctx, ""); err != nil {
		t.Errorf("Destroy empty token: %v", err)
	}
}

func TestManager_ResolveUnknownToken(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})
	for _, token := range []string{"", "nope"} {
		if _, err := m.Resolve(context.Background(), token); !errors.Is(err, ErrNotFound) {
			t.Errorf("Resolve(%q) = %v, want ErrNotFound", token, err)
		}
	}
}

func TestManager_AbsoluteExpiry(t *testing.T) {
	m, store, clock := newTestManager(t, Options{TTL: time.Hour, IdleTimeout: time.Hour})
	ctx := context.Background()

	s, err := m.Create(ctx, jane)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Stay active so only the absolute limit can end the session.
	for range 5 {
		clock.Advance(10 * time.Minute)
		if _, err := m.Resolve(ctx, s.Token); err != nil {
			t.Fatalf("Resolve while active: %v", err)
		}
	}

	clock.Advance(10 * time.Minute)
	if _, err := m.Resolve(ctx, s.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve after TTL: got %v, want ErrNotFound", err)
	}
	if store.Sweep(); store.Len() != 0 {
		t.Errorf("expired session still stored after Sweep")
	}
}

func TestManager_IdleTimeout(t *testing.T) {
	m, _, clock := newTestManager(t, Options{TTL: 24 * time.Hour, IdleTimeout: 30 * time.Minute})
	ctx := context.Background()

	s, err := m.Create(ctx, jane)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock.Advance(20 * time.Minute)
	if _, err := m.Resolve(ctx, s.Token); err != nil {
		t.Fatalf("Resolve within idle window: %v", err)
	}

	// The previous Resolve moved LastSeen, so 20 more minutes is still fine.
	clock.Advance(20 * time.Minute)
	if _, err := m.Resolve(ctx, s.Token); err != nil {
		t.Fatalf("Resolve after touch: %v", err)
	}

	clock.Advance(31 * time.Minute)
	if _, err := m.Resolve(ctx, s.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve after idle timeout: got %v, want ErrNotFound", err)
	}
}

func TestManager_TouchIsThrottled(t *testing.T) {
	m, _, clock := newTestManager(t, Options{TouchInterval: time.Minute})
	ctx := context.Background()

	s, err := m.Create(ctx, jane)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	created := s.LastSeen

	clock.Advance(30 * time.Second)
	got, err := m.Resolve(ctx, s.Token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !got.LastSeen.Equal(created) {
		t.Errorf("LastSeen moved after 30s: %v", got.LastSeen)
	}

	clock.Advance(time.Minute)
	got, err = m.Resolve(ctx, s.Token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !got.LastSeen.Equal(clock.Now()) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, clock.Now())
	}
}

// logoutDuringGet deletes the token right after reading it, as a logout
// landing between Resolve's Get and its idle-clock write would.
type logoutDuringGet struct {
	*MemoryStore
}

func (s logoutDuringGet) Get(ctx context.Context, token string) (*Session, error) {
	got, err := s.MemoryStore.Get(ctx, token)
	if err == nil {
		_ = s.MemoryStore.Delete(ctx, token)
	}
	return got, err
}

func TestManager_ResolveDoesNotRestoreDestroyedSession(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	mem := NewMemoryStore()
	mem.now = clock.Now
	m := NewManager(logoutDuringGet{mem}, Options{TouchInterval: time.Minute}, discardLogger())
	m.now = clock.Now
	ctx := context.Background()

	s, err := m.Create(ctx, jane)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := m.Resolve(ctx, s.Token); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve racing logout = %v, want ErrNotFound", err)
	}
	if _, err := m.Resolve(ctx, s.Token); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve after logout = %v, want ErrNotFound", err)
	}
	if n := mem.Len(); n != 0 {
		t.Errorf("store holds %d entries after logout, want 0", n)
	}
}
