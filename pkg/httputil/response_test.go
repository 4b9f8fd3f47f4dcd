package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "success"}

	err := WriteJSON(w, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, http.StatusBadRequest, errors.New("invalid plan"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid plan"}`, w.Body.String())
}

func TestWriteInternalError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalError(w)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestWriteDetailedError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteDetailedError(w, http.StatusForbidden, "upgrade_required", "insufficient letter credit",
		map[string]interface{}{"pool": "letter", "available": 0, "needed": 1})

	assert.Equal(t, http.StatusForbidden, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "upgrade_required", body.Code)
	assert.Equal(t, "insufficient letter credit", body.Error)
	assert.Equal(t, "letter", body.Details["pool"])
	assert.Equal(t, float64(1), body.Details["needed"])
}

func TestErrorStatusHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter, msg string)
		status int
	}{
		{"validation", WriteValidationError, http.StatusBadRequest},
		{"bad request", WriteBadRequest, http.StatusBadRequest},
		{"unauthorized", WriteUnauthorized, http.StatusUnauthorized},
		{"forbidden", WriteForbidden, http.StatusForbidden},
		{"not found", WriteNotFoundError, http.StatusNotFound},
		{"too many requests", WriteTooManyRequests, http.StatusTooManyRequests},
		{"bad gateway", WriteBadGateway, http.StatusBadGateway},
		{"unavailable", WriteServiceUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w, "something went wrong")
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), "something went wrong")
		})
	}
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteSuccess(w, map[string]string{"status": "ok"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
