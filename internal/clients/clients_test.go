package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberportal/internal/access"
	"memberportal/internal/retry"
)

var fastRetry = retry.Policy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

func TestProfileClientPrincipal(t *testing.T) {
	id := uuid.New()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "/profiles/"+id.String(), r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"id":                id.String(),
			"email":             "ana@example.com",
			"role":              "board",
			"membership_tier":   "gold",
			"billing_plan":      "individual",
			"membership_status": "active",
			"volunteer_status":  "approved",
		})
	}))
	defer srv.Close()

	p, err := NewProfileClient(srv.URL, srv.Client(), fastRetry).Principal(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, &access.Principal{
		ID:               id,
		Email:            "ana@example.com",
		Role:             access.RoleBoard,
		Tier:             access.TierGold,
		BillingPlan:      access.BillingIndividual,
		MembershipStatus: access.MembershipActive,
		VolunteerStatus:  access.VolunteerApproved,
	}, p)
}

func TestProfileClientNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewProfileClient(srv.URL, srv.Client(), fastRetry).Principal(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrProfileNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDocumentClientUpload(t *testing.T) {
	appID := uuid.New()
	uploaded := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req UploadRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, appID, req.ApplicationID)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"reference":   "doc-123",
			"name":        req.Name,
			"size":        req.Size,
			"mime_type":   req.MimeType,
			"uploaded_at": uploaded,
		})
	}))
	defer srv.Close()

	doc, err := NewDocumentClient(srv.URL, srv.Client()).Upload(context.Background(), UploadRequest{
		ApplicationID: appID,
		Name:          "cv.pdf",
		Size:          2048,
		MimeType:      "application/pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "doc-123", doc.Reference)
	assert.Equal(t, int64(2048), doc.Size)
	assert.True(t, uploaded.Equal(doc.UploadedAt))
	assert.False(t, doc.Verified)
}

func TestDocumentClientUploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewDocumentClient(srv.URL, srv.Client()).Upload(context.Background(), UploadRequest{Name: "x"})
	require.Error(t, err)
}
