package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/closetmatrix/closet-matrix/internal/apperror"
	"github.com/closetmatrix/closet-matrix/internal/auth"
	"github.com/closetmatrix/closet-matrix/internal/model"
)

// maxPreferencesBody caps POST /preferences bodies.
const maxPreferencesBody = 64 << 10

// PreferencesService is the part of service.PreferencesService the API needs.
type PreferencesService interface {
	Get(ctx context.Context, userID int64) (*model.Preferences, error)
	UpdateColors(ctx context.Context, userID int64, colors []string) (*model.Preferences, error)
	UpdateSizes(ctx context.Context, userID int64, sizes map[string]string) (*model.Preferences, error)
	UpdateStyleTags(ctx context.Context, userID int64, tags []string) (*model.Preferences, error)
}

// PreferencesHandler is the JSON Preferences API. Both routes sit behind
// Gate.RequireAPI; the user id always comes from the session.
type PreferencesHandler struct {
	prefs  PreferencesService
	logger *slog.Logger
}

func NewPreferencesHandler(prefs PreferencesService, logger *slog.Logger) *PreferencesHandler {
	return &PreferencesHandler{prefs: prefs, logger: logger}
}

// PreferencesResponse is the body of both GET and a successful POST.
type PreferencesResponse struct {
	Success          bool        `json:"success"`
	Colors           []string    `json:"colors"`
	Sizes            model.Sizes `json:"sizes"`
	StylePreferences []string    `json:"style_preferences"`
}

// UpdatePreferencesRequest is the body of POST /preferences. Type picks
// which of the other fields is read.
type UpdatePreferencesRequest struct {
	Type             string            `json:"type"`
	Colors           []string          `json:"colors"`
	Sizes            map[string]string `json:"sizes"`
	StylePreferences []string          `json:"style_preferences"`
}

// HandleGet returns the current user's preferences.
//
// HTTP: GET /preferences
func (h *PreferencesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	s, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthenticated())
		return
	}

	p, err := h.prefs.Get(r.Context(), s.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(p))
}

// HandleUpdate applies one kind of update.
//
// HTTP: POST /preferences
// Body: {"type":"colors","colors":[...]} | {"type":"sizes","sizes":{...}} |
// {"type":"styles","style_preferences":[...]}
func (h *PreferencesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	s, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthenticated())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPreferencesBody)
	var req UpdatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, h.logger, apperror.ValidationFailed("body", "Request body too large"))
			return
		}
		writeError(w, h.logger, apperror.ValidationFailed("body", "Invalid JSON body"))
		return
	}

	var (
		p   *model.Preferences
		err error
	)
	switch req.Type {
	case "colors":
		p, err = h.prefs.UpdateColors(r.Context(), s.UserID, req.Colors)
	case "sizes":
		p, err = h.prefs.UpdateSizes(r.Context(), s.UserID, req.Sizes)
	case "styles":
		p, err = h.prefs.UpdateStyleTags(r.Context(), s.UserID, req.StylePreferences)
	default:
		err = apperror.ValidationFailed("type", `type must be "colors", "sizes" or "styles"`)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(p))
}

func toResponse(p *model.Preferences) PreferencesResponse {
	resp := PreferencesResponse{
		Success:          true,
		Colors:           p.Colors,
		Sizes:            p.Sizes,
		StylePreferences: p.StyleTags,
	}
	if resp.Colors == nil {
		resp.Colors = []string{}
	}
	if resp.StylePreferences == nil {
		resp.StylePreferences = []string{}
	}
	return resp
}
