package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"virtufit-backend/internal/relay"
)

const glbContentType = "model/gltf-binary"

// ObjectStore is an archive backend: Supabase Storage or MinIO.
type ObjectStore interface {
	Name() string
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type ArchiveRecorder interface {
	RecordArchive(backend string, err error)
}

// ArchiveService mirrors generated models from short-lived provider URLs into
// our own bucket.
type ArchiveService struct {
	store      ObjectStore
	httpClient *http.Client
	maxBytes   int64
	recorder   ArchiveRecorder
	logger     *zap.Logger
}

func NewArchiveService(store ObjectStore, maxBytes int64, recorder ArchiveRecorder, logger *zap.Logger) *ArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveService{
		store:      store,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxBytes:   maxBytes,
		recorder:   recorder,
		logger:     logger.With(zap.String("component", "archive"), zap.String("backend", store.Name())),
	}
}

// Archive copies the model of a succeeded snapshot and returns the archived URL.
func (s *ArchiveService) Archive(ctx context.Context, snap *relay.Snapshot) (string, error) {
	archived, err := s.archive(ctx, snap)
	if s.recorder != nil {
		s.recorder.RecordArchive(s.store.Name(), err)
	}
	if err != nil {
		return "", err
	}
	s.logger.Info("model archived",
		zap.String("task_id", snap.TaskID),
		zap.String("url", archived))
	return archived, nil
}

func (s *ArchiveService) archive(ctx context.Context, snap *relay.Snapshot) (string, error) {
	if snap.Status != relay.StatusSucceeded || snap.ResultURL == "" {
		return "", fmt.Errorf("task %s has no model to archive", snap.TaskID)
	}

	data, err := s.download(ctx, snap.ResultURL)
	if err != nil {
		return "", err
	}

	key := objectKey(snap)
	contentType := glbContentType
	if path.Ext(key) != ".glb" {
		contentType = "application/octet-stream"
	}
	archived, err := s.store.Upload(ctx, key, data, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to archive model: %w", err)
	}
	return archived, nil
}

func (s *ArchiveService) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download model: status %d", resp.StatusCode)
	}
	if s.maxBytes > 0 && resp.ContentLength > s.maxBytes {
		return nil, fmt.Errorf("model is %d bytes, limit is %d", resp.ContentLength, s.maxBytes)
	}

	reader := io.Reader(resp.Body)
	if s.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, s.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("model exceeds %d bytes", s.maxBytes)
	}
	return data, nil
}

// objectKey is stable per task so repeated archiving overwrites one object.
func objectKey(snap *relay.Snapshot) string {
	ext := ".glb"
	if u, err := url.Parse(snap.ResultURL); err == nil {
		if e := strings.ToLower(path.Ext(u.Path)); e != "" && len(e) <= 5 {
			ext = e
		}
	}
	return fmt.Sprintf("models/%s/%s%s", snap.Provider, snap.TaskID, ext)
}
