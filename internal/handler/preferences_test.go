package handler_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/closetmatrix/closet-matrix/internal/apperror"
	"github.com/closetmatrix/closet-matrix/internal/auth"
	"github.com/closetmatrix/closet-matrix/internal/handler"
)

func asJane(req *http.Request) *http.Request {
	return req.WithContext(auth.WithSession(req.Context(), jane().Session))
}

func postJSON(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/preferences", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return asJane(req)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var res handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	return res
}

func TestPreferencesHandler_HandleGet(t *testing.T) {
	t.Run("empty preferences", func(t *testing.T) {
		h := handler.NewPreferencesHandler(&fakePrefs{}, discardLogger())

		rec := httptest.NewRecorder()
		h.HandleGet(rec, asJane(httptest.NewRequest(http.MethodGet, "/preferences", nil)))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{
			"success": true,
			"colors": [],
			"sizes": {"tops":"","dresses":"","bottoms":"","shoes":""},
			"style_preferences": []
		}`, rec.Body.String())
	})

	t.Run("without a session", func(t *testing.T) {
		h := handler.NewPreferencesHandler(&fakePrefs{}, discardLogger())

		rec := httptest.NewRecorder()
		h.HandleGet(rec, httptest.NewRequest(http.MethodGet, "/preferences", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		res := decodeError(t, rec)
		assert.False(t, res.Success)
		assert.Equal(t, "unauthenticated", res.Error)
	})

	t.Run("storage error is generic", func(t *testing.T) {
		h := handler.NewPreferencesHandler(&fakePrefs{err: errors.New("pq: relation does not exist")}, discardLogger())

		rec := httptest.NewRecorder()
		h.HandleGet(rec, asJane(httptest.NewRequest(http.MethodGet, "/preferences", nil)))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		res := decodeError(t, rec)
		assert.Equal(t, "internal_error", res.Error)
		assert.NotContains(t, res.Message, "relation")
	})

	t.Run("wrapped not found is generic", func(t *testing.T) {
		err := fmt.Errorf("service/preferences: loading: %w", apperror.NotFound("preferences", "7"))
		h := handler.NewPreferencesHandler(&fakePrefs{err: err}, discardLogger())

		rec := httptest.NewRecorder()
		h.HandleGet(rec, asJane(httptest.NewRequest(http.MethodGet, "/preferences", nil)))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		res := decodeError(t, rec)
		assert.Equal(t, "internal_error", res.Error)
		assert.Equal(t, "Something went wrong. Please try again.", res.Message)
	})
}

func TestPreferencesHandler_HandleUpdate(t *testing.T) {
	t.Run("colors", func(t *testing.T) {
		fp := &fakePrefs{}
		h := handler.NewPreferencesHandler(fp, discardLogger())

		rec := httptest.NewRecorder()
		h.HandleUpdate(rec, postJSON(`{"type":"colors","colors":["#000000","#ffffff"]}`))

		assert.Equal(t, http.StatusOK, rec.Code)
		var res handler.PreferencesResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
		assert.True(t, res.Success)
		assert.Equal(t, []string{"#000000", "#ffffff"}, res.Colors)
		assert.Equal(t, "colors", fp.lastOp)
	})

	t.Run("sizes", func(t *testing.T) {
		fp := &fakePrefs{}
		h := handler.NewPreferencesHandler(fp, discardLogger())

		rec := httptest.NewRecorder()
		h.HandleUpdate(rec, postJSON(`{"type":"sizes","sizes":{"tops":"M"}}`))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]string{"tops": "M"}, fp.lastArg)
	})

	t.Run("styles", func(t *testing.T) {
		fp := &fakePrefs{}
		h := handler.NewPreferencesHandler(fp, discardLogger())

		rec := httptest.NewRecorder()
		h.HandleUpdate(rec, postJSON(`{"type":"styles","style_preferences":["boho","minimal"]}`))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"boho", "minimal"}, fp.lastArg)
	})

	t.Run("validation error carries details", func(t *testing.T) {
		h := handler.NewPreferencesHandler(&fakePrefs{}, discardLogger())

		rec := httptest.NewRecorder()
		h.HandleUpdate(rec, postJSON(`{"type":"colors","colors":["#1","#2","#3","#4","#5","#6"]}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		res := decodeError(t, rec)
		assert.Equal(t, "validation_error", res.Error)
		assert.Len(t, res.Details, 1)
	})

	t.Run("unknown type", func(t *testing.T) {
		fp := &fakePrefs{}
		h := handler.NewPreferencesHandler(fp, discardLogger())

		rec := httptest.NewRecorder()
		h.HandleUpdate(rec, postJSON(`{"type":"shoes"}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, fp.lastOp)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		h := handler.NewPreferencesHandler(&fakePrefs{}, discardLogger())

		rec := httptest.NewRecorder()
		h.HandleUpdate(rec, postJSON(`{"type":`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid JSON body", decodeError(t, rec).Message)
	})

	t.Run("oversized body", func(t *testing.T) {
		h := handler.NewPreferencesHandler(&fakePrefs{}, discardLogger())

		big := `{"type":"styles","style_preferences":["` + strings.Repeat("a", 70<<10) + `"]}`
		rec := httptest.NewRecorder()
		h.HandleUpdate(rec, postJSON(big))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Request body too large", decodeError(t, rec).Message)
	})
}
