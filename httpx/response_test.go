package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diewo77/garage-records/internal/apperr"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestFailInvalidCarriesFields(t *testing.T) {
	rec := httptest.NewRecorder()
	Fail(rec, apperr.Invalid("invalid client", map[string]string{"id": "must be positive"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, "invalid client", body["error"])
	assert.Equal(t, "invalid_input", body["kind"])
	assert.Equal(t, map[string]any{"id": "must be positive"}, body["details"])
}

func TestFailStatusByKind(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"unavailable", apperr.New(apperr.KindUnavailable, "remote down", errors.New("dial tcp")), http.StatusServiceUnavailable, "unavailable"},
		{"timeout", apperr.New(apperr.KindOperationTimeout, "find clients", nil), http.StatusServiceUnavailable, "operation_timeout"},
		{"persistence", apperr.New(apperr.KindPersistenceFailure, "not saved", nil), http.StatusInternalServerError, "persistence_failure"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Fail(rec, tc.err)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.kind, decode(t, rec)["kind"])
		})
	}

	rec := httptest.NewRecorder()
	Fail(rec, apperr.New(apperr.KindUnavailable, "remote down", errors.New("dial tcp")))
	assert.Equal(t, "dial tcp", decode(t, rec)["details"])
}

func TestReadBodyLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/data", strings.NewReader(`{"clients":[]}`))
	rec := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rec, req.Body, 4)

	body, ok := ReadBody(rec, req)
	assert.False(t, ok)
	assert.Nil(t, body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, map[string]any{"limit": float64(4)}, decode(t, rec)["details"])

	req = httptest.NewRequest(http.MethodPost, "/data", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	body, ok = ReadBody(rec, req)
	assert.True(t, ok)
	assert.Equal(t, "{}", string(body))
}
