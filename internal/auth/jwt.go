package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RememberTTL is the lifetime of the remember-me cookie.
const RememberTTL = 30 * 24 * time.Hour

const rememberIssuer = "closet-matrix"

// RememberSigner issues and checks the remember-me cookie value: an HS256
// JWT whose subject is the user's email. It only pre-fills the login form;
// it never authenticates anyone.
type RememberSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewRememberSigner requires a secret of at least 16 characters.
func NewRememberSigner(secret string) (*RememberSigner, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: remember secret must be at least 16 characters")
	}
	return &RememberSigner{secret: []byte(secret), ttl: RememberTTL}, nil
}

// Sign returns a token for email valid for RememberTTL.
func (s *RememberSigner) Sign(email string) (string, error) {
	return s.signWithDuration(email, s.ttl)
}

func (s *RememberSigner) signWithDuration(email string, d time.Duration) (string, error) {
	now := time.Now()
	c := jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		Issuer:    rememberIssuer,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing remember token: %w", err)
	}
	return signed, nil
}

// Verify returns the email carried by a valid, unexpired token.
//
// jwt.WithValidMethods pins HS256 so a token claiming "none" or an
// asymmetric algorithm is rejected.
func (s *RememberSigner) Verify(tokenStr string) (string, error) {
	var c jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(rememberIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: remember token expired")
		}
		return "", fmt.Errorf("auth: invalid remember token: %w", err)
	}
	if !token.Valid || c.Subject == "" {
		return "", fmt.Errorf("auth: remember token has no subject")
	}
	return c.Subject, nil
}
