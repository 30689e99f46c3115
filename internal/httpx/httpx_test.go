package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"memberportal/internal/access"
)

func TestDenied(t *testing.T) {
	rec := httptest.NewRecorder()
	Denied(rec, access.ReasonUnauthenticated, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	Denied(rec, access.ReasonTierMismatch, "premium events")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "tier_mismatch", body.Error)
	assert.Contains(t, body.Message, "premium events")
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	var v struct {
		Version int `json:"version"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"version":2,"extra":true}`))
	require.Error(t, Decode(r, &v))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"version":2}`))
	require.NoError(t, Decode(r, &v))
	assert.Equal(t, 2, v.Version)
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(0.001, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			Error(w, http.StatusNotFound, ErrorBody{Error: "not_found"})
			return
		}
		w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "/missing", entries[1].ContextMap()["path"])
}
