package supabase

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	storage "github.com/supabase-community/storage-go"
)

// StorageClient archives generated models into a public Supabase Storage bucket.
type StorageClient struct {
	// storage-go keeps per-request options in shared headers.
	mu      sync.Mutex
	client  *storage.Client
	bucket  string
	baseURL string
}

func NewStorageClient(client *Client, bucket string) *StorageClient {
	return &StorageClient{
		client:  client.Supabase.Storage,
		bucket:  bucket,
		baseURL: client.BaseURL(),
	}
}

func (s *StorageClient) Name() string { return "supabase" }

// Upload stores data under key and returns its public URL.
func (s *StorageClient) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	upsert := true
	resp, err := s.client.UploadFile(s.bucket, key, bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("failed to upload file: %s: %s", resp.Error, resp.Message)
	}

	return s.PublicURL(key), nil
}

func (s *StorageClient) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s",
		s.baseURL, s.bucket, strings.TrimLeft(key, "/"))
}
