package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"virtufit-backend/internal/relay"
)

func newModelServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.glb" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "model/gltf-binary")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type archiveCounts struct {
	backend string
	errs    int
	oks     int
}

func (a *archiveCounts) RecordArchive(backend string, err error) {
	a.backend = backend
	if err != nil {
		a.errs++
	} else {
		a.oks++
	}
}

func succeededSnapshot(url string) *relay.Snapshot {
	return &relay.Snapshot{TaskID: "t-9", Provider: "meshy", Status: relay.StatusSucceeded, ResultURL: url}
}

func TestArchive_UploadsDownloadedModel(t *testing.T) {
	srv := newModelServer(t, []byte("glTF-binary"))
	store := &fakeStore{}
	rec := &archiveCounts{}
	svc := NewArchiveService(store, 1<<20, rec, zap.NewNop())

	url, err := svc.Archive(context.Background(), succeededSnapshot(srv.URL+"/model.glb?token=abc"))
	require.NoError(t, err)

	assert.Equal(t, "https://archive.example.com/models/meshy/t-9.glb", url)
	assert.Equal(t, []string{"models/meshy/t-9.glb"}, store.puts)
	assert.Equal(t, "fake", rec.backend)
	assert.Equal(t, 1, rec.oks)
}

func TestArchive_Failures(t *testing.T) {
	srv := newModelServer(t, make([]byte, 2048))

	tests := []struct {
		name string
		snap *relay.Snapshot
		max  int64
	}{
		{name: "not found", snap: succeededSnapshot(srv.URL + "/missing.glb"), max: 1 << 20},
		{name: "too large", snap: succeededSnapshot(srv.URL + "/big.glb"), max: 1024},
		{name: "not succeeded", snap: &relay.Snapshot{TaskID: "t", Status: relay.StatusFailed}, max: 1 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			rec := &archiveCounts{}
			svc := NewArchiveService(store, tt.max, rec, zap.NewNop())

			_, err := svc.Archive(context.Background(), tt.snap)
			assert.Error(t, err)
			assert.Empty(t, store.puts)
			assert.Equal(t, 1, rec.errs)
		})
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "models/tripo/abc.glb", objectKey(&relay.Snapshot{Provider: "tripo", TaskID: "abc", ResultURL: "https://x/y/model.GLB?sig=1"}))
	assert.Equal(t, "models/tripo/abc.glb", objectKey(&relay.Snapshot{Provider: "tripo", TaskID: "abc", ResultURL: "https://x/y/download"}))
	assert.Equal(t, "models/meshy/abc.fbx", objectKey(&relay.Snapshot{Provider: "meshy", TaskID: "abc", ResultURL: "https://x/y/model.fbx"}))
}
