package meshy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"virtufit-backend/internal/relay"
)

type meshyServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []imageTo3DRequest
	task     map[string]any
}

func newMeshyServer(t *testing.T) *meshyServer {
	t.Helper()
	s := &meshyServer{task: map[string]any{"status": "IN_PROGRESS", "progress": 10}}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /image-to-3d", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req imageTo3DRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()
		writeJSON(w, http.StatusAccepted, map[string]string{"result": "0193-abc"})
	})

	mux.HandleFunc("GET /image-to-3d/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		body := map[string]any{"id": r.PathValue("id")}
		for k, v := range s.task {
			body[k] = v
		}
		writeJSON(w, http.StatusOK, body)
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *meshyServer) setTask(task map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.task = task
}

func (s *meshyServer) received() []imageTo3DRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]imageTo3DRequest(nil), s.requests...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{APIKey: "test-key", BaseURL: baseURL, AIModel: "meshy-5"}, zap.NewNop())
}

func TestSubmit_InlineImageSentAsDataURL(t *testing.T) {
	srv := newMeshyServer(t)
	c := newTestClient(srv.URL)

	taskID, err := c.Submit(context.Background(), relay.Image{Data: []byte{0x89, 'P', 'N', 'G'}, MimeType: "image/png"}, relay.SubmitOptions{})

	require.NoError(t, err)
	assert.Equal(t, "0193-abc", taskID)
	reqs := srv.received()
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasPrefix(reqs[0].ImageURL, "data:image/png;base64,"))
	assert.Equal(t, "meshy-5", reqs[0].AIModel)
}

func TestSubmit_URLImagePassedThrough(t *testing.T) {
	srv := newMeshyServer(t)
	c := newTestClient(srv.URL)

	_, err := c.Submit(context.Background(), relay.Image{URL: "https://cdn.example.com/p.jpg"}, relay.SubmitOptions{ModelVersion: "meshy-4"})

	require.NoError(t, err)
	reqs := srv.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, "https://cdn.example.com/p.jpg", reqs[0].ImageURL)
	assert.Equal(t, "meshy-4", reqs[0].AIModel)
}

func TestPoll_Succeeded(t *testing.T) {
	srv := newMeshyServer(t)
	srv.setTask(map[string]any{
		"status":        "SUCCEEDED",
		"progress":      100,
		"model_urls":    map[string]string{"glb": "https://x/m.glb", "fbx": "https://x/m.fbx"},
		"thumbnail_url": "https://x/t.png",
	})
	c := newTestClient(srv.URL)

	pt, err := c.Poll(context.Background(), "0193-abc")

	require.NoError(t, err)
	assert.Equal(t, "0193-abc", pt.ID)
	assert.Equal(t, "SUCCEEDED", pt.RawStatus)
	assert.Equal(t, "https://x/m.glb", pt.ResultURL)
	assert.Equal(t, "https://x/t.png", pt.ThumbnailURL)
}

func TestPoll_FailedCarriesTaskError(t *testing.T) {
	srv := newMeshyServer(t)
	srv.setTask(map[string]any{
		"status":     "FAILED",
		"task_error": map[string]string{"message": "image has no recognizable subject"},
	})
	c := newTestClient(srv.URL)

	pt, err := c.Poll(context.Background(), "0193-abc")

	require.NoError(t, err)
	assert.Equal(t, "image has no recognizable subject", pt.ErrorMessage)

	snap, ok := relay.NormalizeReport(providerName, statusTable, pt, time.Now())
	require.True(t, ok)
	assert.Equal(t, relay.StatusFailed, snap.Status)
	assert.Equal(t, "image has no recognizable subject", snap.Error.Message)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
		contains  string
	}{
		{http.StatusUnauthorized, false, "Authentication failed"},
		{http.StatusPaymentRequired, false, "credit"},
		{http.StatusNotFound, false, "not found"},
		{http.StatusTooManyRequests, true, "rate limit"},
		{http.StatusServiceUnavailable, true, "temporarily unavailable"},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(traceHeader, "req-9")
			writeJSON(w, tt.status, map[string]string{"message": "raw vendor text"})
		}))
		c := newTestClient(srv.URL)

		_, err := c.Poll(context.Background(), "0193-abc")
		srv.Close()

		re, ok := relay.AsError(err)
		require.True(t, ok, tt.status)
		assert.Equal(t, relay.KindProviderRejection, re.Kind)
		assert.Contains(t, re.Message, tt.contains)
		assert.NotEmpty(t, re.Suggestion)
		assert.Equal(t, "req-9", re.TraceID)
		assert.Equal(t, tt.retryable, re.Retryable(), tt.status)
		assert.ErrorContains(t, re.Unwrap(), "raw vendor text")
	}
}

func TestStatusTable_CoversDocumentedStatuses(t *testing.T) {
	for raw, want := range map[string]relay.Status{
		"PENDING":     relay.StatusQueued,
		"IN_PROGRESS": relay.StatusRunning,
		"SUCCEEDED":   relay.StatusSucceeded,
		"FAILED":      relay.StatusFailed,
		"CANCELED":    relay.StatusCancelled,
		"EXPIRED":     relay.StatusExpired,
	} {
		got, ok := statusTable.Lookup(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseCallback(t *testing.T) {
	c := newTestClient("http://unused")
	pt, err := c.ParseCallback([]byte(`{"id":"0193-abc","status":"SUCCEEDED","model_urls":{"glb":"https://x/m.glb"}}`))

	require.NoError(t, err)
	assert.Equal(t, "0193-abc", pt.ID)
	assert.Equal(t, "https://x/m.glb", pt.ResultURL)

	_, err = c.ParseCallback([]byte(`{"status":"SUCCEEDED"}`))
	assert.Error(t, err)
}

func TestCheckCredentials(t *testing.T) {
	assert.True(t, relay.IsKind(NewClient(Config{}, nil).CheckCredentials(), relay.KindConfiguration))
	assert.NoError(t, NewClient(Config{APIKey: "k"}, nil).CheckCredentials())
}

func TestPoll_EscapesTaskID(t *testing.T) {
	var mu sync.Mutex
	var gotURI string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotURI = r.RequestURI
		mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"id": "x", "status": "PENDING"})
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)

	_, err := c.Poll(context.Background(), "../balance?x=1")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/image-to-3d/..%2Fbalance%3Fx=1", gotURI)
}
