// Package session is the Session Manager: it maps opaque, unguessable tokens
// to a logged-in user.
//
// A session dies at whichever comes first:
//   - CreatedAt + TTL (absolute lifetime)
//   - LastSeen + IdleTimeout (inactivity)
//   - an explicit Destroy (logout)
//
// Where the sessions live is a Store concern. MemoryStore suits a single
// process, RedisStore lets several instances share logins.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNotFound is returned by a Store when no live session has the token.
var ErrNotFound = errors.New("session: not found")

// tokenBytes gives 256 bits of entropy.
const tokenBytes = 32

// Identity is what gets denormalized into a session at login.
type Identity struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}

// Session is one active login.
type Session struct {
	Token string `json:"-"`
	Identity
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store persists sessions by token.
type Store interface {
	// Save writes s under s.Token. The store may drop it after ttl.
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	// Get returns ErrNotFound for unknown tokens.
	Get(ctx context.Context, token string) (*Session, error)
	// Touch overwrites s only if its token is still stored, and returns
	// ErrNotFound otherwise. A Delete racing a Touch must win.
	Touch(ctx context.Context, s *Session, ttl time.Duration) error
	// Delete must not fail for unknown tokens.
	Delete(ctx context.Context, token string) error
}

// Options configures expiry.
type Options struct {
	TTL         time.Duration
	IdleTimeout time.Duration
	// TouchInterval limits how often Resolve rewrites LastSeen.
	TouchInterval time.Duration
}

// Manager creates, resolves and destroys sessions.
type Manager struct {
	store  Store
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewManager returns a Manager over store. Zero options fall back to
// 24h absolute, 2h idle and a one minute touch interval.
func NewManager(store Store, opts Options, logger *slog.Logger) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 2 * time.Hour
	}
	if opts.TouchInterval <= 0 {
		opts.TouchInterval = time.Minute
	}
	return &Manager{
		store:  store,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Create starts a session for id and returns it with a fresh token.
func (m *Manager) Create(ctx context.Context, id Identity) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	s := &Session{
		Token:     token,
		Identity:  id,
		CreatedAt: now,
		LastSeen:  now,
		ExpiresAt: now.Add(m.opts.TTL),
	}
	if err := m.store.Save(ctx, s, m.storeTTL(s, now)); err != nil {
		return nil, fmt.Errorf("session: saving: %w", err)
	}
	return s, nil
}

// Resolve returns the live session for token. Unknown, expired and idle
// sessions all yield ErrNotFound; the latter two are also deleted.
func (m *Manager) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	s, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	if !now.Before(s.ExpiresAt) || now.Sub(s.LastSeen) >= m.opts.IdleTimeout {
		if err := m.store.Delete(ctx, token); err != nil {
			m.logger.Warn("deleting expired session", slog.String("error", err.Error()))
		}
		return nil, ErrNotFound
	}

	if now.Sub(s.LastSeen) >= m.opts.TouchInterval {
		s.LastSeen = now
		err := m.store.Touch(ctx, s, m.storeTTL(s, now))
		switch {
		case errors.Is(err, ErrNotFound):
			// destroyed since the Get
			return nil, ErrNotFound
		case err != nil:
			// The session is still valid; only the idle clock failed to move.
			m.logger.Warn("refreshing session", slog.String("error", err.Error()))
		}
	}
	return s, nil
}

// Destroy removes the session. Destroying an absent session is not an error.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.Delete(ctx, token); err != nil {
		return fmt.Errorf("session: deleting: %w", err)
	}
	return nil
}

// storeTTL is how long the store should keep s: until the earlier of its
// absolute expiry and its idle deadline.
func (m *Manager) storeTTL(s *Session, now time.Time) time.Duration {
	ttl := s.ExpiresAt.Sub(now)
	if idle := s.LastSeen.Add(m.opts.IdleTimeout).Sub(now); idle < ttl {
		ttl = idle
	}
	return ttl
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
