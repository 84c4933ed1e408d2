// Package service holds the business rules. It sits between the HTTP
// handlers and the storage/session layers:
//
//	handler → AuthService        → UserRepository, LoginAttemptRepository
//	                             ↘ SessionManager, PasswordService
//	handler → PreferencesService → PreferencesRepository
//
// Services speak apperror: validation, conflict and credential failures come
// back as *apperror.AppError; anything else is a wrapped storage error.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/closetmatrix/closet-matrix/internal/apperror"
	"github.com/closetmatrix/closet-matrix/internal/auth"
	"github.com/closetmatrix/closet-matrix/internal/model"
	"github.com/closetmatrix/closet-matrix/internal/repository"
	"github.com/closetmatrix/closet-matrix/internal/session"
)

const (
	defaultUsername = "user"
	// maxUsernameSuffix bounds the janedoe1, janedoe2, ... probe.
	maxUsernameSuffix = 10000
	// maxCreateAttempts bounds retries when a concurrent registration takes
	// the probed username between the probe and the insert.
	maxCreateAttempts = 5
)

// SessionManager is the part of session.Manager the auth flows need.
type SessionManager interface {
	Create(ctx context.Context, id session.Identity) (*session.Session, error)
	Destroy(ctx context.Context, token string) error
}

// LoginPolicy throttles repeated failures per email. MaxFailures <= 0
// disables throttling.
type LoginPolicy struct {
	MaxFailures   int
	FailureWindow time.Duration
}

// AuthService implements registration, login, logout and GitHub sign-in.
type AuthService struct {
	users     repository.UserRepository
	attempts  repository.LoginAttemptRepository
	sessions  SessionManager
	passwords *auth.PasswordService
	policy    LoginPolicy
	logger    *slog.Logger
	now       func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	attempts repository.LoginAttemptRepository,
	sessions SessionManager,
	passwords *auth.PasswordService,
	policy LoginPolicy,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		attempts:  attempts,
		sessions:  sessions,
		passwords: passwords,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// AuthResult is what a successful register or login hands back to the
// handler: the user and the session whose token goes into the cookie.
type AuthResult struct {
	User    *model.User
	Session *session.Session
}

func errEmailTaken() *apperror.AppError {
	return &apperror.AppError{
		Err:     apperror.ErrConflict,
		Message: "Email address already registered",
		Field:   "email",
	}
}

// Register validates the form, creates the account and logs the new user in.
func (s *AuthService) Register(ctx context.Context, in auth.Registration) (*AuthResult, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	// Early exit for the common case; the UNIQUE constraint still decides races.
	if _, err := s.users.GetUserByEmail(ctx, in.Email); err == nil {
		return nil, errEmailTaken()
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Newsletter:   in.Newsletter,
		IsActive:     true,
	}
	if err := s.createWithUniqueUsername(ctx, user, deriveUsername(in.FirstName, in.LastName)); err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
	)

	sess, err := s.sessions.Create(ctx, identityOf(user))
	if err != nil {
		return nil, fmt.Errorf("service/auth: creating session for user %d: %w", user.ID, err)
	}
	return &AuthResult{User: user, Session: sess}, nil
}

// Login authenticates email and password. An unknown email and a wrong
// password both yield apperror.InvalidCredentials; a correct password on a
// deactivated account yields apperror.AccountInactive.
func (s *AuthService) Login(ctx context.Context, email, password, ip string) (*AuthResult, error) {
	if err := auth.ValidateLogin(email, password); err != nil {
		return nil, err
	}
	email = auth.NormalizeEmail(email)
	now := s.now().UTC()

	if s.policy.MaxFailures > 0 {
		failures, err := s.attempts.CountFailedLoginsSince(ctx, email, now.Add(-s.policy.FailureWindow))
		if err != nil {
			return nil, fmt.Errorf("service/auth: counting failed logins: %w", err)
		}
		if failures >= s.policy.MaxFailures {
			s.logger.Warn("login throttled",
				slog.String("email", email),
				slog.String("ip", ip),
				slog.Int("failures", failures),
			)
			return nil, apperror.TooManyAttempts()
		}
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.loginFailed(ctx, email, ip, "unknown email")
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("verifying password hash",
				slog.Int64("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		s.loginFailed(ctx, email, ip, "bad password")
		return nil, apperror.InvalidCredentials()
	}

	if !user.IsActive {
		s.loginFailed(ctx, email, ip, "inactive")
		return nil, apperror.AccountInactive()
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("service/auth: updating last login: %w", err)
	}
	user.LastLogin = &now

	sess, err := s.sessions.Create(ctx, identityOf(user))
	if err != nil {
		return nil, fmt.Errorf("service/auth: creating session for user %d: %w", user.ID, err)
	}

	s.recordAttempt(ctx, email, ip, true)
	s.logger.Info("login succeeded",
		slog.Int64("userID", user.ID),
		slog.String("ip", ip),
	)
	return &AuthResult{User: user, Session: sess}, nil
}

// Logout destroys the session. Unknown or empty tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Destroy(ctx, token); err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}
	if token != "" {
		s.logger.Info("logged out")
	}
	return nil
}

// LoginWithGitHub signs in the account whose email matches the GitHub
// profile, creating a password-less account on first use.
func (s *AuthService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.Email == "" {
		return nil, fmt.Errorf("service/auth: GitHub user must have an email")
	}
	email := auth.NormalizeEmail(gh.Email)

	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !user.IsActive {
			return nil, apperror.AccountInactive()
		}
	case errors.Is(err, apperror.ErrNotFound):
		first, last := gh.FirstLast()
		user = &model.User{
			Email:     email,
			FirstName: first,
			LastName:  last,
			IsActive:  true,
		}
		base := deriveUsername(first, last)
		if base == defaultUsername {
			base = deriveUsername(gh.Login, "")
		}
		if err := s.createWithUniqueUsername(ctx, user, base); err != nil {
			return nil, err
		}
		s.logger.Info("user registered via GitHub",
			slog.Int64("userID", user.ID),
			slog.String("login", gh.Login),
		)
	default:
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("service/auth: updating last login: %w", err)
	}
	user.LastLogin = &now

	sess, err := s.sessions.Create(ctx, identityOf(user))
	if err != nil {
		return nil, fmt.Errorf("service/auth: creating session for user %d: %w", user.ID, err)
	}
	s.logger.Info("login succeeded via GitHub", slog.Int64("userID", user.ID))
	return &AuthResult{User: user, Session: sess}, nil
}

// createWithUniqueUsername inserts user under the first free username derived
// from base. A username conflict at insert time means another registration
// won the race, so the probe runs again.
func (s *AuthService) createWithUniqueUsername(ctx context.Context, user *model.User, base string) error {
	for range maxCreateAttempts {
		username, err := s.freeUsername(ctx, base)
		if err != nil {
			return err
		}
		user.Username = username

		err = s.users.CreateUser(ctx, user)
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperror.ErrConflict) {
			return fmt.Errorf("service/auth: creating user: %w", err)
		}
		if apperror.FieldOf(err) != "username" {
			return errEmailTaken()
		}
		s.logger.Debug("username taken concurrently, retrying", slog.String("username", username))
	}
	return fmt.Errorf("service/auth: could not reserve a username for %q", base)
}

// freeUsername returns base, or base followed by the smallest suffix 1, 2, ...
// that is not taken.
func (s *AuthService) freeUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 1; i <= maxUsernameSuffix; i++ {
		taken, err := s.users.UsernameExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("service/auth: checking username: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i)
	}
	return "", fmt.Errorf("service/auth: no free username for %q", base)
}

func (s *AuthService) loginFailed(ctx context.Context, email, ip, reason string) {
	s.logger.Warn("login failed",
		slog.String("email", email),
		slog.String("ip", ip),
		slog.String("reason", reason),
	)
	s.recordAttempt(ctx, email, ip, false)
}

// recordAttempt is best effort: a broken audit table must not block logins.
func (s *AuthService) recordAttempt(ctx context.Context, email, ip string, success bool) {
	err := s.attempts.RecordLoginAttempt(ctx, &model.LoginAttempt{
		Email:       email,
		IPAddress:   ip,
		Success:     success,
		AttemptedAt: s.now(),
	})
	if err != nil {
		s.logger.Error("recording login attempt", slog.String("error", err.Error()))
	}
}

// deriveUsername slugifies first+last and drops the separators
// ("Jane", "Doe" → "janedoe", "Zoë", "Smith" → "zoesmith"). Names with
// nothing usable fall back to "user".
func deriveUsername(first, last string) string {
	base := strings.ReplaceAll(slug.Make(first+last), "-", "")
	if base == "" {
		return defaultUsername
	}
	return base
}

func identityOf(u *model.User) session.Identity {
	return session.Identity{
		UserID:    u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
	}
}
