package auth

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/closetmatrix/closet-matrix/internal/apperror"
)

// PasswordSymbols is the set a password must draw at least one symbol from.
const PasswordSymbols = "@$!%*?&"

const (
	MinNameLength     = 2
	MinPasswordLength = 8
)

// Registration is the raw sign-up form.
type Registration struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
	AgreeTerms      bool
	Newsletter      bool
}

// Normalize trims the names and normalizes the email. Passwords are left
// untouched.
func (r *Registration) Normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = NormalizeEmail(r.Email)
}

// Validate runs every registration rule and reports all violations at once,
// in form order. It returns nil when r is acceptable.
func (r Registration) Validate() error {
	var errs []string

	if utf8.RuneCountInString(r.FirstName) < MinNameLength {
		errs = append(errs, "First name must be at least 2 characters")
	}
	if utf8.RuneCountInString(r.LastName) < MinNameLength {
		errs = append(errs, "Last name must be at least 2 characters")
	}
	if !ValidEmail(r.Email) {
		errs = append(errs, "Invalid email address")
	}
	errs = append(errs, passwordViolations(r.Password)...)
	if r.Password != r.ConfirmPassword {
		errs = append(errs, "Passwords do not match")
	}
	if !r.AgreeTerms {
		errs = append(errs, "You must agree to the Terms of Service and Privacy Policy")
	}

	if len(errs) > 0 {
		return apperror.ValidationErrors(errs...)
	}
	return nil
}

func passwordViolations(pw string) []string {
	var errs []string
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, c := range pw {
		switch {
		case unicode.IsUpper(c):
			hasUpper = true
		case unicode.IsLower(c):
			hasLower = true
		case unicode.IsDigit(c):
			hasDigit = true
		case strings.ContainsRune(PasswordSymbols, c):
			hasSymbol = true
		}
	}

	if len(pw) < MinPasswordLength {
		errs = append(errs, "Password must be at least 8 characters")
	}
	if len(pw) > MaxPasswordBytes {
		errs = append(errs, "Password must be 72 bytes or fewer")
	}
	if !hasUpper {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if !hasLower {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if !hasDigit {
		errs = append(errs, "Password must contain at least one number")
	}
	if !hasSymbol {
		errs = append(errs, "Password must contain at least one special character (@$!%*?&)")
	}
	return errs
}

// ValidateLogin checks the login form before any lookup happens.
func ValidateLogin(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return apperror.ValidationFailed("", "Please fill in all fields")
	}
	if !ValidEmail(NormalizeEmail(email)) {
		return apperror.ValidationFailed("email", "Invalid email format")
	}
	return nil
}

// NormalizeEmail trims and lowercases an address. Stored emails are always
// in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail accepts a bare addr-spec (no display name) whose domain has at
// least one dot.
func ValidEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	domain := email[at+1:]
	return strings.Contains(domain, ".") &&
		!strings.HasPrefix(domain, ".") &&
		!strings.HasSuffix(domain, ".")
}
