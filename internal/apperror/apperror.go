// Package apperror defines the error taxonomy shared by the service and
// transport layers.
//
// Services return *AppError values wrapping one of the sentinels below.
// Handlers use errors.Is to pick a status code and AppError.Message (or
// Details) for the user-facing text. Any error that is NOT an *AppError is
// treated as a storage/internal failure and never shown to the client.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account inactive")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrTooManyAttempts    = errors.New("too many attempts")
)

type AppError struct {
	Err     error    // sentinel
	Message string   // Human-readable error message
	Field   string   // Optional: field causing the error
	Details []string // Optional: every violated rule, in check order
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
		Details: []string{message},
	}
}

// ValidationErrors collects several rule violations into one error.
// Message joins them with ", " the same way the registration form displays them.
func ValidationErrors(messages ...string) *AppError {
	details := make([]string, len(messages))
	copy(details, messages)
	return &AppError{
		Err:     ErrValidation,
		Message: strings.Join(details, ", "),
		Details: details,
	}
}

// Conflict reports a uniqueness violation on the given field.
func Conflict(resource, field string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s with this %s already exists", resource, field),
		Field:   field,
	}
}

// InvalidCredentials is deliberately unspecific: it covers both an unknown
// email and a wrong password.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "Invalid email or password",
	}
}

func AccountInactive() *AppError {
	return &AppError{
		Err:     ErrAccountInactive,
		Message: "Account is deactivated",
	}
}

func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "authentication required",
	}
}

func TooManyAttempts() *AppError {
	return &AppError{
		Err:     ErrTooManyAttempts,
		Message: "Too many failed login attempts. Please try again later.",
	}
}

// FieldOf returns the Field of the first *AppError in err's chain.
func FieldOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
