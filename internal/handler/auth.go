package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/xid"

	"github.com/closetmatrix/closet-matrix/internal/auth"
	"github.com/closetmatrix/closet-matrix/internal/service"
)

const (
	rememberCookieName = "remember_user"
	stateCookieName    = "oauth_state"

	registerFailedMessage = "Registration failed. Please try again."
	loginFailedMessage    = "Login failed. Please try again."
	registeredMessage     = "Account created successfully! Welcome to Closet Matrix."
)

// Authenticator is the part of service.AuthService the handlers call.
type Authenticator interface {
	Register(ctx context.Context, in auth.Registration) (*service.AuthResult, error)
	Login(ctx context.Context, email, password, ip string) (*service.AuthResult, error)
	Logout(ctx context.Context, token string) error
	LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*service.AuthResult, error)
}

// OAuthProvider is implemented by *auth.GitHubProvider.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// RememberTokens is implemented by *auth.RememberSigner.
type RememberTokens interface {
	Sign(email string) (string, error)
	Verify(token string) (string, error)
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	SessionName string
	Secure      bool // true behind HTTPS
}

// AuthHandler serves the register, login and logout forms, the session
// status endpoint and the optional GitHub sign-in.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister       → POST /register, form in, redirect out
//   - HandleLogin          → POST /login, form in, redirect out
//   - HandleLogout         → GET|POST /logout
//   - HandleSessionStatus  → GET /session-status (JSON)
//   - HandleGitHubLogin    → redirect the browser to GitHub
//   - HandleGitHubCallback → finish the OAuth exchange and log in
//
// github and remember may be nil: GitHub sign-in then answers 404 and the
// remember-me cookie is never issued.
type AuthHandler struct {
	auth     Authenticator
	github   OAuthProvider
	remember RememberTokens
	cookies  CookieConfig
	logger   *slog.Logger
}

func NewAuthHandler(
	authn Authenticator,
	github OAuthProvider,
	remember RememberTokens,
	cookies CookieConfig,
	logger *slog.Logger,
) *AuthHandler {
	if cookies.SessionName == "" {
		cookies.SessionName = "closet_session"
	}
	return &AuthHandler{
		auth:     authn,
		github:   github,
		remember: remember,
		cookies:  cookies,
		logger:   logger,
	}
}

// HandleRegister creates an account and logs the new user in.
//
// HTTP: POST /register (application/x-www-form-urlencoded)
// Every failure goes back to /register?error=<message>; validation errors
// carry all violated rules joined by ", ".
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWithError(w, r, "/register", "Invalid request")
		return
	}

	in := auth.Registration{
		FirstName:       r.PostFormValue("first_name"),
		LastName:        r.PostFormValue("last_name"),
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
		AgreeTerms:      checked(r, "agree_terms"),
		Newsletter:      checked(r, "newsletter"),
	}

	res, err := h.auth.Register(r.Context(), in)
	if err != nil {
		redirectWithError(w, r, "/register", userMessage(h.logger, err, registerFailedMessage))
		return
	}

	h.endPreviousSession(r)
	h.setSessionCookie(w, res.Session.Token)
	redirectTo(w, r, "/", url.Values{"success": {registeredMessage}})
}

// HandleLogin authenticates the form credentials.
//
// HTTP: POST /login (application/x-www-form-urlencoded)
// Fields: email, password, remember_me (optional), next (optional, a local path).
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWithError(w, r, "/login", "Invalid request")
		return
	}

	email := r.PostFormValue("email")
	next := safeNext(r.PostFormValue("next"))

	res, err := h.auth.Login(r.Context(), email, r.PostFormValue("password"), clientIP(r))
	if err != nil {
		params := url.Values{"error": {userMessage(h.logger, err, loginFailedMessage)}}
		if next != "/" {
			params.Set("next", next)
		}
		redirectTo(w, r, "/login", params)
		return
	}

	h.endPreviousSession(r)
	h.setSessionCookie(w, res.Session.Token)
	if checked(r, "remember_me") {
		h.setRememberCookie(w, res.User.Email)
	}

	redirectTo(w, r, next, url.Values{"success": {"Welcome back, " + res.User.FirstName + "!"}})
}

// HandleLogout destroys the session and clears its cookie. It never fails
// from the browser's point of view.
//
// HTTP: GET|POST /logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.endPreviousSession(r)

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.SessionName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// SessionStatus is the body of GET /session-status. The pointer fields
// encode as null for anonymous visitors.
type SessionStatus struct {
	LoggedIn bool    `json:"logged_in"`
	UserID   *int64  `json:"user_id"`
	Username *string `json:"username"`
}

// HandleSessionStatus reports who is logged in. The route runs behind
// Gate.Optional, so an anonymous request is not an error.
//
// HTTP: GET /session-status
func (h *AuthHandler) HandleSessionStatus(w http.ResponseWriter, r *http.Request) {
	status := SessionStatus{}
	if s, ok := auth.SessionFromContext(r.Context()); ok {
		id, name := s.UserID, s.Username
		status = SessionStatus{LoggedIn: true, UserID: &id, Username: &name}
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, status)
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// The random state goes into a short-lived cookie and is compared on the
// callback, so only a flow this server started can complete.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		http.NotFound(w, r)
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub profile
//  3. Log in, or create, the account with that email
//  4. Set the session cookie and redirect home
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		http.NotFound(w, r)
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		redirectWithError(w, r, "/login", "GitHub sign-in was cancelled")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		redirectWithError(w, r, "/login", loginFailedMessage)
		return
	}

	res, err := h.auth.LoginWithGitHub(r.Context(), ghUser)
	if err != nil {
		redirectWithError(w, r, "/login", userMessage(h.logger, err, loginFailedMessage))
		return
	}

	h.endPreviousSession(r)
	h.setSessionCookie(w, res.Session.Token)
	redirectTo(w, r, "/", url.Values{"success": {"Welcome back, " + res.User.FirstName + "!"}})
}

// RememberedEmail returns the email from a valid remember-me cookie, or "".
func (h *AuthHandler) RememberedEmail(r *http.Request) string {
	if h.remember == nil {
		return ""
	}
	c, err := r.Cookie(rememberCookieName)
	if err != nil || c.Value == "" {
		return ""
	}
	email, err := h.remember.Verify(c.Value)
	if err != nil {
		h.logger.Debug("ignoring remember-me cookie", slog.String("error", err.Error()))
		return ""
	}
	return email
}

// endPreviousSession destroys the session named by the request's cookie,
// if any. The browser's cookie is replaced or cleared by the caller.
func (h *AuthHandler) endPreviousSession(r *http.Request) {
	c, err := r.Cookie(h.cookies.SessionName)
	if err != nil || c.Value == "" {
		return
	}
	if err := h.auth.Logout(r.Context(), c.Value); err != nil {
		h.logger.Error("destroying session", slog.String("error", err.Error()))
	}
}

// setSessionCookie sets a browser-session cookie (no MaxAge): the server
// side enforces the real lifetime.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.SessionName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) setRememberCookie(w http.ResponseWriter, email string) {
	if h.remember == nil {
		return
	}
	token, err := h.remember.Sign(email)
	if err != nil {
		h.logger.Error("signing remember-me token", slog.String("error", err.Error()))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     rememberCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.RememberTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// checked reads an HTML checkbox: browsers send "on" when ticked and omit
// the field otherwise.
func checked(r *http.Request, field string) bool {
	switch strings.ToLower(strings.TrimSpace(r.PostFormValue(field))) {
	case "", "0", "false", "off", "no":
		return false
	}
	return true
}

// safeNext keeps next only when it is a local absolute path. "//host" and
// "/\host" are protocol-relative redirects in browsers and are refused.
func safeNext(next string) string {
	if next == "" || next[0] != '/' || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return next
}

// clientIP strips the port from RemoteAddr. chi's RealIP middleware may
// already have replaced RemoteAddr with a bare IP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
