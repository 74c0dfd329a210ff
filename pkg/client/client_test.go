package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/types"
)

func TestQueryDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/records", r.URL.Path)
		assert.Equal(t, "recipe", r.URL.Query().Get("recordType"))
		assert.Empty(t, r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]any{
			"message":                "Records retrieved successfully",
			"latestArweaveBlockInDB": 1234,
			"indexingProgress":       "87.50%",
			"totalRecords":           2,
			"searchResults":          1,
			"pageSize":               20,
			"currentPage":            1,
			"totalPages":             1,
			"auth":                   map[string]any{"authenticated": false},
			"records":                []map[string]any{{"data": map[string]any{}}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.Query(url.Values{"recordType": {"recipe"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1234), resp.LatestArweaveBlockInDB)
	assert.Equal(t, "87.50%", resp.IndexingProgress)
	assert.Equal(t, 2, resp.TotalRecords)
	assert.Len(t, resp.Records, 1)
	assert.False(t, resp.Auth.Authenticated)
}

func TestBearerTokenSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-alice", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"records": []any{}})
	}))
	defer srv.Close()

	c := NewWithToken(srv.URL, "tok-alice")
	_, err := c.Query(nil)
	require.NoError(t, err)
}

func TestPublishRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/records/newRecord", r.URL.Path)
		assert.Equal(t, "gun", r.URL.Query().Get("storage"))
		assert.Equal(t, "rec-1", r.URL.Query().Get("localId"))
		assert.Equal(t, "arweave,gun", r.URL.Query().Get("destinations"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload struct {
			Data          types.RecordData     `json:"data"`
			AccessControl *types.AccessControl `json:"accessControl"`
		}
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "Coq au Vin", payload.Data["basic"]["name"])
		require.NotNil(t, payload.AccessControl)
		assert.Equal(t, types.AccessPublic, payload.AccessControl.AccessLevel)

		json.NewEncoder(w).Encode(types.PublishResult{
			Status: types.PublishSuccess,
			DID:    types.DID("did:gun:pub:rec-1"),
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.Publish(PublishRequest{
		Data:          types.RecordData{"basic": {"name": "Coq au Vin"}},
		AccessControl: &types.AccessControl{AccessLevel: types.AccessPublic},
		Storage:       "gun",
		LocalID:       "rec-1",
		Destinations:  []string{"arweave", "gun"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.PublishSuccess, result.Status)
	assert.Equal(t, types.DID("did:gun:pub:rec-1"), result.DID)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, types.ErrValidation},
		{http.StatusUnauthorized, types.ErrOwnershipDenied},
		{http.StatusForbidden, types.ErrOwnershipDenied},
		{http.StatusNotFound, types.ErrNotFound},
		{http.StatusConflict, types.ErrConflict},
		{http.StatusServiceUnavailable, types.ErrCapacityExceeded},
		{http.StatusBadGateway, types.ErrUpstreamUnavailable},
		{http.StatusInternalServerError, types.ErrStore},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			json.NewEncoder(w).Encode(map[string]string{"error": "boom"})
		}))

		_, err := New(srv.URL).Query(nil)
		require.Error(t, err, "status %d", tt.status)
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		assert.Contains(t, err.Error(), "boom")
		srv.Close()
	}
}

func TestJobCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/jobs/job-1":
			json.NewEncoder(w).Encode(types.Job{JobID: "job-1", Status: types.JobComplete})
		case r.Method == http.MethodGet && r.URL.Path == "/jobs":
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			json.NewEncoder(w).Encode(map[string]any{
				"jobs": []types.Job{{JobID: "job-1"}, {JobID: "job-2"}},
			})
		case r.Method == http.MethodDelete && r.URL.Path == "/jobs/job-1":
			json.NewEncoder(w).Encode(map[string]string{"status": "cancelled"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)

	job, err := c.Job("job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobComplete, job.Status)

	jobs, err := c.Jobs(5)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	require.NoError(t, c.CancelJob("job-1"))
}

func TestWaitForJobPolls(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := types.JobProcessing
		if polls.Add(1) >= 3 {
			status = types.JobComplete
		}
		json.NewEncoder(w).Encode(types.Job{JobID: "job-1", Status: status})
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	job, err := c.WaitForJob(ctx, "job-1", 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.JobComplete, job.Status)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestHealthDecodesUnhealthyReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"status": "unhealthy",
			"checks": map[string]any{
				"gateway": map[string]any{"healthy": false, "message": "connection refused"},
			},
		})
	}))
	defer srv.Close()

	health, err := New(srv.URL).Health()
	require.NoError(t, err, "an unhealthy daemon still answers")
	assert.Equal(t, "unhealthy", health.Status)
	assert.False(t, health.Checks["gateway"].Healthy)
}

func TestDaemonUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1")
	_, err := c.Query(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUpstreamUnavailable)
}
