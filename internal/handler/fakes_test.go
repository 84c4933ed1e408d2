package handler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/closetmatrix/closet-matrix/internal/apperror"
	"github.com/closetmatrix/closet-matrix/internal/auth"
	"github.com/closetmatrix/closet-matrix/internal/model"
	"github.com/closetmatrix/closet-matrix/internal/service"
	"github.com/closetmatrix/closet-matrix/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jane() *service.AuthResult {
	return &service.AuthResult{
		User: &model.User{ID: 7, Username: "janedoe", Email: "jane@example.com", FirstName: "Jane", IsActive: true},
		Session: &session.Session{
			Token:    "tok-123",
			Identity: session.Identity{UserID: 7, Username: "janedoe", Email: "jane@example.com", FirstName: "Jane"},
		},
	}
}

// fakeAuth records what the handler passed in and returns canned results.
type fakeAuth struct {
	registered  auth.Registration
	loginEmail  string
	loginIP     string
	loggedOut   []string
	githubUser  *auth.GitHubUser
	result      *service.AuthResult
	err         error
	logoutError error
}

func (f *fakeAuth) Register(_ context.Context, in auth.Registration) (*service.AuthResult, error) {
	f.registered = in
	return f.result, f.err
}

func (f *fakeAuth) Login(_ context.Context, email, _, ip string) (*service.AuthResult, error) {
	f.loginEmail, f.loginIP = email, ip
	return f.result, f.err
}

func (f *fakeAuth) Logout(_ context.Context, token string) error {
	f.loggedOut = append(f.loggedOut, token)
	return f.logoutError
}

func (f *fakeAuth) LoginWithGitHub(_ context.Context, gh *auth.GitHubUser) (*service.AuthResult, error) {
	f.githubUser = gh
	return f.result, f.err
}

type fakeRemember struct{}

func (fakeRemember) Sign(email string) (string, error) { return "signed." + email, nil }

func (fakeRemember) Verify(token string) (string, error) {
	email, ok := strings.CutPrefix(token, "signed.")
	if !ok {
		return "", errors.New("bad token")
	}
	return email, nil
}

type fakeGitHub struct {
	user *auth.GitHubUser
	err  error
	code string
}

func (f *fakeGitHub) AuthURL(state string) string {
	return "https://github.example/authorize?state=" + state
}

func (f *fakeGitHub) Exchange(_ context.Context, code string) (*auth.GitHubUser, error) {
	f.code = code
	return f.user, f.err
}

// fakePrefs keeps one user's preferences in memory.
type fakePrefs struct {
	prefs   *model.Preferences
	err     error
	lastOp  string
	lastArg any
}

func (f *fakePrefs) Get(_ context.Context, userID int64) (*model.Preferences, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.prefs == nil {
		return model.EmptyPreferences(userID), nil
	}
	return f.prefs, nil
}

func (f *fakePrefs) UpdateColors(ctx context.Context, userID int64, colors []string) (*model.Preferences, error) {
	f.lastOp, f.lastArg = "colors", colors
	if f.err != nil {
		return nil, f.err
	}
	if len(colors) > 5 {
		return nil, apperror.ValidationErrors("You can choose at most 5 colors")
	}
	p, _ := f.Get(ctx, userID)
	p.Colors = colors
	f.prefs = p
	return p, nil
}

func (f *fakePrefs) UpdateSizes(ctx context.Context, userID int64, sizes map[string]string) (*model.Preferences, error) {
	f.lastOp, f.lastArg = "sizes", sizes
	if f.err != nil {
		return nil, f.err
	}
	p, _ := f.Get(ctx, userID)
	if v, ok := sizes["tops"]; ok {
		p.Sizes.Tops = v
	}
	f.prefs = p
	return p, nil
}

func (f *fakePrefs) UpdateStyleTags(ctx context.Context, userID int64, tags []string) (*model.Preferences, error) {
	f.lastOp, f.lastArg = "styles", tags
	if f.err != nil {
		return nil, f.err
	}
	p, _ := f.Get(ctx, userID)
	p.StyleTags = tags
	f.prefs = p
	return p, nil
}
