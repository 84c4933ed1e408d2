package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/closetmatrix/closet-matrix/internal/session"
)

// contextKey is unexported so no other package can read or shadow the
// session stored in a request context.
type contextKey string

const sessionKey contextKey = "session"

// SessionResolver is the part of session.Manager the gate needs.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*session.Session, error)
}

// Gate is the Auth Gate. It turns the session cookie into a *session.Session
// in the request context, and rejects anonymous requests on protected routes:
// pages get a redirect to the login page, JSON endpoints get a 401.
type Gate struct {
	sessions   SessionResolver
	cookieName string
	logger     *slog.Logger
}

func NewGate(sessions SessionResolver, cookieName string, logger *slog.Logger) *Gate {
	return &Gate{sessions: sessions, cookieName: cookieName, logger: logger}
}

// Optional loads the session when one is present and never blocks.
func (g *Gate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s, ok := g.resolve(r); ok {
			r = r.WithContext(WithSession(r.Context(), s))
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePage redirects anonymous visitors to /login?next=<path>.
func (g *Gate) RequirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := g.resolve(r)
		if !ok {
			target := "/login?next=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// RequireAPI answers anonymous requests with 401 and the same JSON error
// body the handlers write for apperror.Unauthenticated.
func (g *Gate) RequireAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := g.resolve(r)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":"unauthenticated","message":"authentication required"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// resolve never fails the request: a store error is logged and the request
// is treated as anonymous.
func (g *Gate) resolve(r *http.Request) (*session.Session, bool) {
	cookie, err := r.Cookie(g.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}

	s, err := g.sessions.Resolve(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			g.logger.Error("resolving session",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}
	return s, true
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session the gate attached, if any.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok && s != nil
}
