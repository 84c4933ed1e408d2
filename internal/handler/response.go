package handler

// RESPONSE HELPERS:
// Every JSON error has the same shape, whatever the status:
//   {"success": false, "error": "validation_error", "message": "...", "details": [...]}
//
// Form endpoints never answer with JSON. They redirect back to the page with
// ?error=<message> (see redirectWithError), which is what the pages render.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/closetmatrix/closet-matrix/internal/apperror"
)

// genericErrorMessage is all a client ever learns about a storage failure.
const genericErrorMessage = "Something went wrong. Please try again."

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`   // Machine-readable error type (e.g., "validation_error")
	Message string   `json:"message"` // Human-readable description
	Details []string `json:"details,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be written before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, so logging is all that is left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusOf maps an error chain to an HTTP status and a machine-readable type.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, apperror.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, apperror.ErrAccountInactive):
		return http.StatusForbidden, "account_inactive"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrTooManyAttempts):
		return http.StatusTooManyRequests, "too_many_attempts"
	}
	return http.StatusInternalServerError, "internal_error"
}

// publicError returns the *apperror.AppError a client may see. Only the
// kinds statusOf maps qualify: a NotFound wrapped by a storage step names
// internal ids and stays hidden.
func publicError(err error) (*apperror.AppError, bool) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return nil, false
	}
	if status, _ := statusOf(appErr); status == http.StatusInternalServerError {
		return nil, false
	}
	return appErr, true
}

// writeError maps a service error to a status code and writes it.
//
// Anything publicError rejects is a storage or programming failure: it is
// logged here and the client gets genericErrorMessage.
// Raw error text may contain SQL or addresses and is never echoed.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if appErr, ok := publicError(err); ok {
		status, errorType := statusOf(appErr)
		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
			Details: appErr.Details,
		})
		return
	}

	logger.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: genericErrorMessage,
	})
}

// userMessage returns the text a form page may show for err. Storage
// failures are logged and replaced by fallback.
func userMessage(logger *slog.Logger, err error, fallback string) string {
	if appErr, ok := publicError(err); ok {
		return appErr.Message
	}
	logger.Error("request failed", slog.String("error", err.Error()))
	return fallback
}

// redirectTo redirects to target with params merged into its query, using
// 303 so the browser follows up a form POST with a GET.
func redirectTo(w http.ResponseWriter, r *http.Request, target string, params url.Values) {
	u, err := url.Parse(target)
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			if v != "" {
				q.Add(k, v)
			}
		}
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}

func redirectWithError(w http.ResponseWriter, r *http.Request, path, message string) {
	redirectTo(w, r, path, url.Values{"error": {message}})
}
