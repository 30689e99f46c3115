package events

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"memberportal/internal/access"
	"memberportal/internal/httpx"
	"memberportal/internal/session"
)

func TestHandlerRegistrationFlow(t *testing.T) {
	svc, _ := newTestService(t)
	principals := map[string]*access.Principal{
		"admin":  principal(access.RoleAdmin, access.TierPlatinum, access.MembershipActive),
		"bronze": principal(access.RoleMember, access.TierBronze, access.MembershipActive),
		"gold":   principal(access.RoleMember, access.TierGold, access.MembershipActive),
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, ok := principals[r.Header.Get("X-Principal")]; ok {
				r = r.WithContext(session.WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Mount("/api/v1/events", NewHandler(svc, zap.NewNop()).Routes())
	srv := httptest.NewServer(r)
	defer srv.Close()

	do := func(who, method, path string, body any) *http.Response {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req, err := http.NewRequest(method, srv.URL+"/api/v1/events"+path, &buf)
		require.NoError(t, err)
		if who != "" {
			req.Header.Set("X-Principal", who)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := do("admin", http.MethodPost, "/", map[string]any{
		"title":         "Gold gala",
		"starts_at":     fixedNow.Add(48 * time.Hour),
		"allowed_tiers": []string{"gold", "platinum"},
		"capacity":      1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var e Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.True(t, e.RequiresActiveMembership)

	resp = do("bronze", http.MethodPost, "/"+e.ID.String()+"/registrations", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	var body httpx.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, string(access.ReasonTierMismatch), body.Error)

	resp = do("", http.MethodPost, "/"+e.ID.String()+"/registrations", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do("gold", http.MethodPost, "/"+e.ID.String()+"/registrations", nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do("gold", http.MethodPost, "/"+e.ID.String()+"/registrations", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do("gold", http.MethodGet, "/"+e.ID.String()+"/registrations", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do("admin", http.MethodGet, "/"+e.ID.String()+"/registrations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var regs []Registration
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&regs))
	assert.Len(t, regs, 1)

	resp = do("gold", http.MethodGet, "/not-an-id", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do("admin", http.MethodPost, "/", map[string]any{"title": "", "capacity": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
