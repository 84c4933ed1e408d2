package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

// newFakeGitHub serves the token endpoint plus /user and /user/emails.
func newFakeGitHub(t *testing.T, user GitHubUser, emails []githubEmail) *GitHubProvider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_test","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(user)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(emails)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return newGitHubProvider(&oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/auth/github/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  srv.URL + "/login/oauth/authorize",
			TokenURL: srv.URL + "/login/oauth/access_token",
		},
	}, srv.URL)
}

func TestGitHubProvider_AuthURLCarriesState(t *testing.T) {
	p := NewGitHubProvider("client", "secret", "http://localhost/auth/github/callback")

	u, err := url.Parse(p.AuthURL("state-123"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Query().Get("state") != "state-123" {
		t.Errorf("state = %q", u.Query().Get("state"))
	}
	if !strings.Contains(u.Query().Get("scope"), "user:email") {
		t.Errorf("scope = %q", u.Query().Get("scope"))
	}
}

func TestGitHubProvider_ExchangePublicEmail(t *testing.T) {
	p := newFakeGitHub(t, GitHubUser{ID: 42, Login: "janed", Name: "Jane Doe", Email: "Jane@Example.com"}, nil)

	u, err := p.Exchange(context.Background(), "code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if u.ID != 42 || u.Email != "jane@example.com" {
		t.Errorf("got %+v", u)
	}
}

func TestGitHubProvider_ExchangePrivateEmail(t *testing.T) {
	p := newFakeGitHub(t,
		GitHubUser{ID: 42, Login: "janed"},
		[]githubEmail{
			{Email: "old@example.com", Primary: false, Verified: true},
			{Email: "jane@example.com", Primary: true, Verified: true},
		},
	)

	u, err := p.Exchange(context.Background(), "code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if u.Email != "jane@example.com" {
		t.Errorf("Email = %q, want primary verified address", u.Email)
	}
}

func TestGitHubProvider_ExchangeNoVerifiedEmail(t *testing.T) {
	p := newFakeGitHub(t,
		GitHubUser{ID: 42, Login: "janed"},
		[]githubEmail{{Email: "jane@example.com", Primary: true, Verified: false}},
	)

	if _, err := p.Exchange(context.Background(), "code"); err == nil {
		t.Fatal("Exchange should fail without a verified primary email")
	}
}

func TestGitHubUser_FirstLast(t *testing.T) {
	tests := []struct {
		user        GitHubUser
		first, last string
	}{
		{GitHubUser{Login: "janed", Name: "Jane Doe"}, "Jane", "Doe"},
		{GitHubUser{Login: "janed", Name: "Jane van der Berg"}, "Jane", "van der Berg"},
		{GitHubUser{Login: "janed", Name: "  "}, "janed", ""},
		{GitHubUser{Login: "janed", Name: "Cher"}, "Cher", ""},
	}
	for _, tt := range tests {
		first, last := tt.user.FirstLast()
		if first != tt.first || last != tt.last {
			t.Errorf("FirstLast(%q) = %q %q, want %q %q", tt.user.Name, first, last, tt.first, tt.last)
		}
	}
}
